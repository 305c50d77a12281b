// Package telegram provides the notification sink and the bot-command
// front end over the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/walletwatch/engine/internal/engine"
	"github.com/walletwatch/engine/internal/logger"
	"github.com/walletwatch/engine/internal/models"

	"github.com/shopspring/decimal"
)

// profileURLBase links a wallet to its Polymarket profile page.
const profileURLBase = "https://polymarket.com/profile/"

// Controller is the engine surface the command front end drives.
type Controller interface {
	StartWatch(ctx context.Context) error
	StopWatch()
	Status() engine.Status
	CheckNow(ctx context.Context) (int, error)
	Recent(n int) ([]models.TradeEvent, error)
	Summarize() models.DailySummary
	UpdateConfig(mutate func(*engine.Config)) engine.Config
}

// Client handles Telegram notifications and bot commands.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates
// and dispatches bot commands to the controller. It returns immediately;
// the goroutine stops when ctx is cancelled. Commands from any chat
// other than the configured one are ignored.
func (c *Client) ListenForCommands(ctx context.Context, ctrl Controller) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || !update.Message.IsCommand() {
					continue
				}
				if update.Message.Chat.ID != c.chatID {
					continue
				}
				c.handleCommand(ctx, ctrl, update.Message)
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, ctrl Controller, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start_watch":
		if err := ctrl.StartWatch(ctx); err != nil {
			c.reply("⚠️ Watch is already active")
			return
		}
		c.reply("🟢 *Watch started\\!*\n\nYou will get a notification for every new trade\\.")

	case "stop_watch":
		ctrl.StopWatch()
		c.reply("🔴 *Watch stopped*")

	case "status":
		c.reply(formatStatus(ctrl.Status()))

	case "check":
		c.reply("🔍 Checking now\\.\\.\\.")
		novel, err := ctrl.CheckNow(ctx)
		if err != nil {
			c.reply("❌ Could not fetch trades")
			return
		}
		if novel == 0 {
			c.reply("✅ No new trades detected")
		}

	case "recent":
		n := 5
		if args != "" {
			if parsed, err := strconv.Atoi(args); err == nil && parsed > 0 {
				n = parsed
			}
		}
		events, err := ctrl.Recent(n)
		if err != nil {
			c.reply("❌ Could not read recent trades")
			return
		}
		c.reply(formatRecent(events))

	case "summary":
		c.reply(formatSummary(ctrl.Summarize()))

	case "set_min":
		min, err := decimal.NewFromString(args)
		if err != nil || min.IsNegative() {
			c.reply("Usage: /set\\_min \\<usd\\>")
			return
		}
		ctrl.UpdateConfig(func(cfg *engine.Config) { cfg.MinNotionalUSD = min })
		c.reply(fmt.Sprintf("✅ Minimum notional set to \\$%s", escapeMarkdownV2(min.StringFixed(2))))

	case "set_interval":
		d, err := time.ParseDuration(args)
		if err != nil || d < time.Second {
			c.reply("Usage: /set\\_interval \\<duration ≥ 1s\\>")
			return
		}
		ctrl.UpdateConfig(func(cfg *engine.Config) { cfg.PollInterval = d })
		c.reply(fmt.Sprintf("✅ Poll interval set to %s", escapeMarkdownV2(d.String())))

	case "set_staleness":
		d, err := time.ParseDuration(args)
		if err != nil || d < time.Hour || d > 24*time.Hour {
			c.reply("Usage: /set\\_staleness \\<duration between 1h and 24h\\>")
			return
		}
		ctrl.UpdateConfig(func(cfg *engine.Config) { cfg.StalenessWindow = d })
		c.reply(fmt.Sprintf("✅ Staleness window set to %s", escapeMarkdownV2(d.String())))

	case "set_wallet":
		if !strings.HasPrefix(args, "0x") || len(args) != 42 {
			c.reply("Usage: /set\\_wallet \\<0x address\\>")
			return
		}
		ctrl.UpdateConfig(func(cfg *engine.Config) { cfg.WalletAddress = args })
		c.reply(fmt.Sprintf("✅ Now watching `%s`", escapeMarkdownV2(shortenAddress(args))))

	case "set_summary_time":
		if _, err := time.Parse("15:04", args); err != nil {
			c.reply("Usage: /set\\_summary\\_time \\<HH:MM\\>")
			return
		}
		ctrl.UpdateConfig(func(cfg *engine.Config) { cfg.SummaryTime = args })
		c.reply(fmt.Sprintf("✅ Daily summary scheduled at %s", escapeMarkdownV2(args)))

	case "help":
		c.reply(helpText)

	case "ping":
		c.reply("Pong")
	}
}

const helpText = `🤖 *Available commands:*

/start\_watch \- Start watching the wallet
/stop\_watch \- Stop watching
/status \- Show watch status
/check \- Check for new trades now
/recent \[n\] \- Show the n most recent trades
/summary \- Show today's trade summary
/set\_wallet \- Change the watched wallet
/set\_interval \- Change the poll interval
/set\_min \- Change the minimum notional
/set\_staleness \- Change the staleness window
/set\_summary\_time \- Change the daily summary time
/help \- Show this help`

func (c *Client) reply(text string) {
	if err := c.sendMarkdownV2(text); err != nil {
		logger.Warn("Failed to send Telegram reply: %v", err)
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// NotifyTrade sends one trade notification. Delivery failure is the
// caller's signal to log and drop; the trade is never requeued.
func (c *Client) NotifyTrade(ev models.TradeEvent, market *models.MarketInfo, walletAddress string) error {
	return c.sendMarkdownV2(formatTrade(ev, market, walletAddress))
}

// NotifySummary sends the daily summary.
func (c *Client) NotifySummary(s models.DailySummary) error {
	return c.sendMarkdownV2(formatSummary(s))
}

// SendStartupBanner announces the bot configuration on startup.
func (c *Client) SendStartupBanner(cfg engine.Config) error {
	text := fmt.Sprintf(`🤖 *Wallet watcher started*

📊 *Configuration:*
• Wallet: `+"`%s`"+`
• Interval: %s
• Min notional: \$%s
• Staleness window: %s

Use /start\_watch to begin, /help for all commands\.`,
		escapeMarkdownV2(shortenAddress(cfg.WalletAddress)),
		escapeMarkdownV2(cfg.PollInterval.String()),
		escapeMarkdownV2(cfg.MinNotionalUSD.StringFixed(2)),
		escapeMarkdownV2(cfg.StalenessWindow.String()),
	)
	return c.sendMarkdownV2(text)
}

// formatTrade renders one trade notification in MarkdownV2.
func formatTrade(ev models.TradeEvent, market *models.MarketInfo, walletAddress string) string {
	direction := "🔔 TRADE"
	switch ev.Side {
	case models.SideBuy:
		direction = "🟢 BUY"
	case models.SideSell:
		direction = "🔴 SELL"
	}

	title := "Unknown market"
	if market != nil && market.Title != "" {
		title = market.Title
	}
	marketLine := escapeMarkdownV2(title)
	if market != nil && market.Link != "" {
		marketLine = fmt.Sprintf("[%s](%s)", escapeMarkdownV2(title), escapeLinkURL(market.Link))
	}

	when := "N/A"
	if ev.OccurredAt != nil {
		when = ev.OccurredAt.Format("2006-01-02 15:04:05")
	}

	return fmt.Sprintf(`🔔 *New Trade Detected\!*

%s

📊 *Market:* %s

💰 *Details:*
• Position: %s
• Price: \$%s
• Quantity: %s
• Total: \$%s

⏰ %s

👀 [View wallet](%s)`,
		direction,
		marketLine,
		escapeMarkdownV2(ev.Outcome),
		escapeMarkdownV2(ev.Price.StringFixed(2)),
		escapeMarkdownV2(ev.Quantity.StringFixed(2)),
		escapeMarkdownV2(ev.NotionalUSD.StringFixed(2)),
		escapeMarkdownV2(when),
		escapeLinkURL(profileURLBase+walletAddress),
	)
}

// formatStatus renders the /status reply.
func formatStatus(st engine.Status) string {
	state := "🔴 Stopped"
	if st.Running {
		state = "🟢 Active"
	}
	return fmt.Sprintf(`📊 *Watch status*

State: %s
Wallet: `+"`%s`"+`
Known trades: %d
Today: %d trades
Interval: %s \| Min: \$%s \| Staleness: %s`,
		state,
		escapeMarkdownV2(shortenAddress(st.Config.WalletAddress)),
		st.KnownCount,
		st.DailyCount,
		escapeMarkdownV2(st.Config.PollInterval.String()),
		escapeMarkdownV2(st.Config.MinNotionalUSD.StringFixed(2)),
		escapeMarkdownV2(st.Config.StalenessWindow.String()),
	)
}

// formatRecent renders the /recent reply.
func formatRecent(events []models.TradeEvent) string {
	if len(events) == 0 {
		return "No trades recorded yet"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🕑 *Last %d trades:*\n\n", len(events))
	for i, ev := range events {
		when := "N/A"
		if ev.OccurredAt != nil {
			when = ev.OccurredAt.Format("01-02 15:04")
		}
		fmt.Fprintf(&b, "%d\\. %s %s \\$%s _%s_\n",
			i+1,
			escapeMarkdownV2(ev.Side.String()),
			escapeMarkdownV2(ev.Outcome),
			escapeMarkdownV2(ev.NotionalUSD.StringFixed(2)),
			escapeMarkdownV2(when),
		)
	}
	return b.String()
}

// formatSummary renders the daily summary.
func formatSummary(s models.DailySummary) string {
	if s.Empty() {
		return fmt.Sprintf("📊 *Daily summary %s*\n\nNo trades today", escapeMarkdownV2(s.Day))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Daily summary %s*\n\n", escapeMarkdownV2(s.Day))
	fmt.Fprintf(&b, "Trades: %d \\(🟢 %d buys / 🔴 %d sells\\)\n", s.Count, s.BuyCount, s.SellCount)
	fmt.Fprintf(&b, "Total: \\$%s \\| Avg: \\$%s\n",
		escapeMarkdownV2(s.TotalNotional.StringFixed(2)),
		escapeMarkdownV2(s.AvgNotional.StringFixed(2)),
	)
	if len(s.Top) > 0 {
		b.WriteString("\n*Top trades:*\n")
		for i, ev := range s.Top {
			fmt.Fprintf(&b, "%d\\. %s %s \\$%s\n",
				i+1,
				escapeMarkdownV2(ev.Side.String()),
				escapeMarkdownV2(ev.Outcome),
				escapeMarkdownV2(ev.NotionalUSD.StringFixed(2)),
			)
		}
	}
	return b.String()
}

// shortenAddress abbreviates a wallet address for display.
func shortenAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// escapeLinkURL escapes the characters MarkdownV2 treats specially
// inside the URL part of an inline link.
func escapeLinkURL(u string) string {
	r := strings.NewReplacer(`\`, `\\`, `)`, `\)`)
	return r.Replace(u)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
