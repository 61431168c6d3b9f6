package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestClient(t *testing.T, handler http.Handler) (*RestClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRestClient(srv.URL, 5*time.Second, testLogger()), srv
}

func TestRestClientReads(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/api/account", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"acct-1","status":"ACTIVE","trading_blocked":false}`))
	})
	mux.HandleFunc("/api/clock", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"is_open":false,"next_open":"2024-01-02T14:30:00Z"}`))
	})
	mux.HandleFunc("/api/assets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"AAPL","name":"Apple Inc.","exchange":"NASDAQ","tradable":true}]`))
	})
	mux.HandleFunc("/api/bars", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1Day", r.URL.Query().Get("timeframe"))
		w.Write([]byte(`{"bars":[{"t":"2024-01-02T09:30:00Z","c":187.15}]}`))
	})
	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, client.Ping(ctx))
	})

	t.Run("account", func(t *testing.T) {
		account, err := client.GetAccount(ctx)
		require.NoError(t, err)
		assert.Equal(t, "acct-1", account.ID)
		assert.Equal(t, "ACTIVE", account.Status)
		assert.False(t, account.TradingBlocked)
	})

	t.Run("clock", func(t *testing.T) {
		clock, err := client.GetClock(ctx)
		require.NoError(t, err)
		assert.False(t, clock.IsOpen)
		assert.Equal(t, "2024-01-02T14:30:00Z", clock.NextOpen)
	})

	t.Run("assets", func(t *testing.T) {
		assets, err := client.ListAssets(ctx)
		require.NoError(t, err)
		require.Len(t, assets, 1)
		assert.Equal(t, "AAPL", assets[0].Symbol)
	})

	t.Run("bars", func(t *testing.T) {
		bars, err := client.GetBars(ctx, "AAPL", "1Day", 200)
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Equal(t, 187.15, bars[0].Close)
	})
}

func TestRestClientErrorClassification(t *testing.T) {
	t.Run("http error response is not a network error", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream broker error", http.StatusBadGateway)
		}))
		_, err := client.GetAccount(context.Background())
		require.Error(t, err)
		assert.False(t, IsNetworkError(err))
		assert.Contains(t, err.Error(), "http 502")
	})

	t.Run("unreachable gateway is a network error", func(t *testing.T) {
		client, srv := newTestClient(t, http.NewServeMux())
		srv.Close()
		_, err := client.GetAccount(context.Background())
		require.Error(t, err)
		assert.True(t, IsNetworkError(err))
	})

	t.Run("plain errors are not network errors", func(t *testing.T) {
		assert.False(t, IsNetworkError(assert.AnError))
		assert.False(t, IsNetworkError(nil))
	})
}

func TestRestClientPlaceOrder(t *testing.T) {
	t.Run("error status passes through as a result", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/order", r.URL.Path)
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message":"insufficient buying power"}`))
		}))
		result, err := client.PlaceOrder(context.Background(), map[string]any{"symbol": "AAPL"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, result.HTTPStatus)
		assert.Contains(t, result.RawBody, "buying power")
	})

	t.Run("accepted order passes through", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"order-1","status":"accepted"}`))
		}))
		result, err := client.PlaceOrder(context.Background(), map[string]any{"symbol": "AAPL"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, result.HTTPStatus)
	})

	t.Run("unreachable gateway errors", func(t *testing.T) {
		client, srv := newTestClient(t, http.NewServeMux())
		srv.Close()
		_, err := client.PlaceOrder(context.Background(), map[string]any{"symbol": "AAPL"})
		require.Error(t, err)
		assert.True(t, IsNetworkError(err))
	})
}

func TestRestClientClosePosition(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/close_position", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"position does not exist"}`))
	}))
	result, err := client.ClosePosition(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, result.HTTPStatus)
}
