package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return NewClient(2*time.Second, 3, time.Millisecond, 1000)
}

func TestDataAPI_Fetch(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": "t1", "side": "BUY", "price": "0.5", "size": "20", "timestamp": 1700000000},
			{"id": "t2", "side": "SELL", "price": "0.3", "size": "10", "timestamp": 1700000100}
		]`))
	}))
	defer srv.Close()

	a := NewDataAPI(srv.URL, testClient())
	records, err := a.Fetch(context.Background(), "0xABCDEF0123456789abcdef0123456789ABCDEF01", 20)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "/trades", gotPath)
	// Wallet must be lower-cased in the query.
	assert.Contains(t, gotQuery, "user=0xabcdef0123456789abcdef0123456789abcdef01")
	assert.Contains(t, gotQuery, "limit=20")
	assert.Equal(t, "t1", records[0]["id"])
	assert.Equal(t, "data-api", a.Name())
}

func TestGamma_FetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	a := NewGamma(srv.URL, testClient())
	records, err := a.Fetch(context.Background(), "0x594edb9112f526fa6a80b8f858a6379c8a2c1c11", 20)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, "gamma", a.Name())
}

func TestFetch_Non2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewDataAPI(srv.URL, testClient())
	_, err := a.Fetch(context.Background(), "0x594edb9112f526fa6a80b8f858a6379c8a2c1c11", 20)
	assert.Error(t, err)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"id": "t1"}]`))
	}))
	defer srv.Close()

	a := NewDataAPI(srv.URL, testClient())
	records, err := a.Fetch(context.Background(), "0x594edb9112f526fa6a80b8f858a6379c8a2c1c11", 5)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewGamma(srv.URL, testClient())
	_, err := a.Fetch(context.Background(), "0x594edb9112f526fa6a80b8f858a6379c8a2c1c11", 5)
	require.Error(t, err)
	assert.EqualValues(t, 3, calls.Load())
}
