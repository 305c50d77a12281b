package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/walletwatch/engine/internal/config"
	"github.com/walletwatch/engine/internal/engine"
	"github.com/walletwatch/engine/internal/logger"
	"github.com/walletwatch/engine/internal/notify"
	"github.com/walletwatch/engine/internal/resolver"
	"github.com/walletwatch/engine/internal/source"
	"github.com/walletwatch/engine/internal/storage"
	"github.com/walletwatch/engine/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	autoStart  = flag.Bool("watch", false, "Start watching immediately instead of waiting for /start_watch")
)

func main() {
	flag.Parse()

	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxTrades, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	apiClient := source.NewClient(
		cfg.API.Timeout,
		cfg.API.MaxRetries,
		cfg.API.RetryDelayBase,
		cfg.API.RatePerSec,
	)
	adapters := []source.Adapter{
		source.NewDataAPI(cfg.API.DataAPIURL, apiClient),
		source.NewGamma(cfg.API.GammaAPIURL, apiClient),
	}
	markets := resolver.New(cfg.API.GammaAPIURL, apiClient)

	engineCfg := engine.Config{
		WalletAddress:   cfg.Watch.WalletAddress,
		PollInterval:    cfg.Watch.PollInterval,
		FetchLimit:      cfg.Watch.FetchLimit,
		MinNotionalUSD:  decimal.NewFromFloat(cfg.Watch.MinNotionalUSD),
		StalenessWindow: cfg.Watch.StalenessWindow,
		SummaryTime:     cfg.Watch.SummaryTime,
	}

	var sink engine.Sink
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
		sink = telegramClient
	} else {
		logger.Debug("Telegram notifications disabled, writing to console")
		sink = notify.NewConsole()
	}

	eng := engine.New(engineCfg, adapters, markets, sink, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, eng)
		if err := telegramClient.SendStartupBanner(engineCfg); err != nil {
			logger.Warn("Failed to send startup banner: %v", err)
		}
	}

	if *autoStart || telegramClient == nil {
		if err := eng.StartWatch(ctx); err != nil {
			logger.Fatal("Failed to start watch: %v", err)
		}
	}

	logger.Info("Wallet watcher running (wallet: %s, interval: %v)",
		cfg.Watch.WalletAddress, cfg.Watch.PollInterval)

	<-sigChan
	logger.Info("Shutdown signal received, cleaning up...")
	eng.StopWatch()
	cancel()
	logger.Info("Service stopped")
}
