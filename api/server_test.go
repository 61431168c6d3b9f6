package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedesk/minibroker/pkg/tradelog"
)

// fakeBroker implements broker.Client with per-call hooks.
type fakeBroker struct {
	account   func() (json.RawMessage, error)
	bars      func(symbol, timeframe string, limit int) (json.RawMessage, error)
	trade     func(symbol string) (json.RawMessage, error)
	quote     func(symbol string) (json.RawMessage, error)
	place     func(payload map[string]any) (int, json.RawMessage, error)
	closePos  func(symbol string) (int, json.RawMessage, error)
	lastOrder map[string]any
}

func (f *fakeBroker) GetAccount(context.Context) (json.RawMessage, error) {
	if f.account == nil {
		return json.RawMessage(`{"id":"acct-1","status":"ACTIVE"}`), nil
	}
	return f.account()
}

func (f *fakeBroker) GetClock(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"is_open":true}`), nil
}

func (f *fakeBroker) ListAssets(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[{"symbol":"AAPL"}]`), nil
}

func (f *fakeBroker) GetBars(_ context.Context, symbol, timeframe string, limit int) (json.RawMessage, error) {
	if f.bars == nil {
		return json.RawMessage(`{"bars":[]}`), nil
	}
	return f.bars(symbol, timeframe, limit)
}

func (f *fakeBroker) LatestTrade(_ context.Context, symbol string) (json.RawMessage, error) {
	if f.trade == nil {
		return json.RawMessage(`{"trade":{"p":187.2}}`), nil
	}
	return f.trade(symbol)
}

func (f *fakeBroker) LatestQuote(_ context.Context, symbol string) (json.RawMessage, error) {
	if f.quote == nil {
		return json.RawMessage(`{"quote":{"bp":187.1,"ap":187.3}}`), nil
	}
	return f.quote(symbol)
}

func (f *fakeBroker) ListOrders(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeBroker) ListPositions(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[]`), nil
}

func (f *fakeBroker) PlaceOrder(_ context.Context, payload map[string]any) (int, json.RawMessage, error) {
	f.lastOrder = payload
	if f.place == nil {
		return 200, json.RawMessage(`{"id":"order-1"}`), nil
	}
	return f.place(payload)
}

func (f *fakeBroker) ClosePosition(_ context.Context, symbol string) (int, json.RawMessage, error) {
	if f.closePos == nil {
		return 200, json.RawMessage(`{"symbol":"` + symbol + `"}`), nil
	}
	return f.closePos(symbol)
}

func newTestServer(t *testing.T, broker *fakeBroker) *Server {
	t.Helper()
	log, err := tradelog.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(broker, log, logger, "0")
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	server := newTestServer(t, &fakeBroker{})
	rec := doJSON(t, server.Handler(), http.MethodGet, "/api/ping", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pong":true}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	server := newTestServer(t, &fakeBroker{})
	rec := doJSON(t, server.Handler(), http.MethodOptions, "/api/order", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProxyEndpoints(t *testing.T) {
	t.Run("passes upstream body through", func(t *testing.T) {
		server := newTestServer(t, &fakeBroker{})
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/account", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":"acct-1","status":"ACTIVE"}`, rec.Body.String())
	})

	t.Run("upstream failure maps to 502", func(t *testing.T) {
		broker := &fakeBroker{account: func() (json.RawMessage, error) {
			return nil, errors.New("upstream down")
		}}
		server := newTestServer(t, broker)
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/account", nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestBars(t *testing.T) {
	t.Run("requires symbol", func(t *testing.T) {
		server := newTestServer(t, &fakeBroker{})
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/bars", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("applies defaults and uppercases", func(t *testing.T) {
		broker := &fakeBroker{bars: func(symbol, timeframe string, limit int) (json.RawMessage, error) {
			assert.Equal(t, "AAPL", symbol)
			assert.Equal(t, "1Day", timeframe)
			assert.Equal(t, 100, limit)
			return json.RawMessage(`{"bars":[]}`), nil
		}}
		server := newTestServer(t, broker)
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/bars?symbol=aapl", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("honors explicit parameters", func(t *testing.T) {
		broker := &fakeBroker{bars: func(symbol, timeframe string, limit int) (json.RawMessage, error) {
			assert.Equal(t, "1Hour", timeframe)
			assert.Equal(t, 50, limit)
			return json.RawMessage(`{"bars":[]}`), nil
		}}
		server := newTestServer(t, broker)
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/bars?symbol=AAPL&timeframe=1Hour&limit=50", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestQuoteSlotIsolation(t *testing.T) {
	t.Run("one failed slot never fails the response", func(t *testing.T) {
		broker := &fakeBroker{trade: func(string) (json.RawMessage, error) {
			return nil, errors.New("http 500")
		}}
		server := newTestServer(t, broker)
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/quote?symbol=AAPL", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var snapshot map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
		assert.JSONEq(t, `{"error":"http 500"}`, string(snapshot["trade"]))
		assert.JSONEq(t, `{"quote":{"bp":187.1,"ap":187.3}}`, string(snapshot["quote"]))
	})

	t.Run("requires symbol", func(t *testing.T) {
		server := newTestServer(t, &fakeBroker{})
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/quote", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestOrderTranslation(t *testing.T) {
	t.Run("defaults to market gtc", func(t *testing.T) {
		payload, err := translateOrder(map[string]any{"symbol": "aapl", "side": "buy", "qty": 10.0})
		require.NoError(t, err)

		assert.Equal(t, "AAPL", payload["symbol"])
		assert.Equal(t, "market", payload["type"])
		assert.Equal(t, "gtc", payload["time_in_force"])
		assert.Equal(t, false, payload["extended_hours"])
		assert.NotContains(t, payload, "order_class")
	})

	t.Run("limit order needs a price and stringifies it", func(t *testing.T) {
		_, err := translateOrder(map[string]any{"symbol": "AAPL", "type": "limit"})
		require.Error(t, err)

		payload, err := translateOrder(map[string]any{"symbol": "AAPL", "type": "limit", "limit_price": 187.5})
		require.NoError(t, err)
		assert.Equal(t, "187.5", payload["limit_price"])
	})

	t.Run("tp or sl makes a bracket order", func(t *testing.T) {
		payload, err := translateOrder(map[string]any{
			"symbol":   "AAPL",
			"side":     "buy",
			"qty":      10.0,
			"tp_price": 195.0,
			"sl_price": 180.0,
		})
		require.NoError(t, err)

		assert.Equal(t, "bracket", payload["order_class"])
		assert.Equal(t, map[string]string{"limit_price": "195"}, payload["take_profit"])
		assert.Equal(t, map[string]string{"stop_price": "180"}, payload["stop_loss"])
	})

	t.Run("single leg still brackets", func(t *testing.T) {
		payload, err := translateOrder(map[string]any{"symbol": "AAPL", "tp_price": 195.0})
		require.NoError(t, err)
		assert.Equal(t, "bracket", payload["order_class"])
		assert.Contains(t, payload, "take_profit")
		assert.NotContains(t, payload, "stop_loss")
	})

	t.Run("missing symbol fails", func(t *testing.T) {
		_, err := translateOrder(map[string]any{"side": "buy"})
		assert.Error(t, err)
	})
}

func TestOrderEndpoint(t *testing.T) {
	t.Run("passes upstream status and body through", func(t *testing.T) {
		broker := &fakeBroker{place: func(map[string]any) (int, json.RawMessage, error) {
			return 422, json.RawMessage(`{"message":"insufficient buying power"}`), nil
		}}
		server := newTestServer(t, broker)

		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/order", map[string]any{
			"symbol": "AAPL", "side": "buy", "qty": 10,
		})

		assert.Equal(t, 422, rec.Code)
		assert.Contains(t, rec.Body.String(), "buying power")
	})

	t.Run("records input and placement in the trade log", func(t *testing.T) {
		broker := &fakeBroker{}
		server := newTestServer(t, broker)

		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/order", map[string]any{
			"symbol": "AAPL", "side": "buy", "qty": 10,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		entries, err := server.log.Recent(10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "PLACE_ORDER", entries[0].Action)
		assert.Equal(t, "ORDER_INPUT", entries[1].Action)
	})

	t.Run("bad json is a 400", func(t *testing.T) {
		server := newTestServer(t, &fakeBroker{})
		req := httptest.NewRequest(http.MethodPost, "/api/order", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("network failure upstream is a 502", func(t *testing.T) {
		broker := &fakeBroker{place: func(map[string]any) (int, json.RawMessage, error) {
			return 0, nil, errors.New("connection refused")
		}}
		server := newTestServer(t, broker)
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/order", map[string]any{"symbol": "AAPL"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestClosePositionEndpoint(t *testing.T) {
	t.Run("uppercases and passes through", func(t *testing.T) {
		broker := &fakeBroker{closePos: func(symbol string) (int, json.RawMessage, error) {
			assert.Equal(t, "AAPL", symbol)
			return 200, json.RawMessage(`{"symbol":"AAPL"}`), nil
		}}
		server := newTestServer(t, broker)

		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/close_position", map[string]any{"symbol": " aapl "})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("requires symbol", func(t *testing.T) {
		server := newTestServer(t, &fakeBroker{})
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/close_position", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestClientLogEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeBroker{})

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/client-log", map[string]any{
		"level": "error", "message": "boom", "where": "chart",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	entries, err := server.log.Recent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "CLIENT_LOG", entries[0].Action)
	assert.Contains(t, string(entries[0].Request), "boom")
}

func TestLogsEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeBroker{})
	require.NoError(t, server.log.Append("PLACE_ORDER", "OK", nil, nil, ""))

	rec := doJSON(t, server.Handler(), http.MethodGet, "/api/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []tradelog.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "PLACE_ORDER", entries[0].Action)
}
