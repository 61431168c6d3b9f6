package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client is the upstream broker surface the gateway proxies. Responses
// stay raw: the gateway passes vendor JSON through untouched and the
// dashboard normalizes shapes on its side.
type Client interface {
	GetAccount(ctx context.Context) (json.RawMessage, error)
	GetClock(ctx context.Context) (json.RawMessage, error)
	ListAssets(ctx context.Context) (json.RawMessage, error)
	GetBars(ctx context.Context, symbol, timeframe string, limit int) (json.RawMessage, error)
	LatestTrade(ctx context.Context, symbol string) (json.RawMessage, error)
	LatestQuote(ctx context.Context, symbol string) (json.RawMessage, error)
	ListOrders(ctx context.Context) (json.RawMessage, error)
	ListPositions(ctx context.Context) (json.RawMessage, error)
	// PlaceOrder and ClosePosition pass the upstream HTTP status and
	// body through for display instead of flattening them into errors.
	PlaceOrder(ctx context.Context, payload map[string]any) (int, json.RawMessage, error)
	ClosePosition(ctx context.Context, symbol string) (int, json.RawMessage, error)
}

// AlpacaClient talks to an Alpaca-style broker API: a trading host for
// account/orders/positions and a data host for bars and quotes.
type AlpacaClient struct {
	trading *resty.Client
	data    *resty.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

func NewAlpacaClient(tradingURL, dataURL, keyID, secret string, logger *logrus.Logger) *AlpacaClient {
	newHost := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(strings.TrimSuffix(base, "/")).
			SetTimeout(30 * time.Second).
			SetHeader("APCA-API-KEY-ID", keyID).
			SetHeader("APCA-API-SECRET-KEY", secret).
			SetHeader("Accept", "application/json")
	}
	return &AlpacaClient{
		trading: newHost(tradingURL),
		data:    newHost(dataURL),
		// Alpaca allows 200 requests/min; stay comfortably under it.
		limiter: rate.NewLimiter(rate.Limit(3), 5),
		logger:  logger,
	}
}

func (c *AlpacaClient) GetAccount(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, c.trading, "/v2/account", nil)
}

func (c *AlpacaClient) GetClock(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, c.trading, "/v2/clock", nil)
}

func (c *AlpacaClient) ListAssets(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, c.trading, "/v2/assets", map[string]string{
		"status":      "active",
		"asset_class": "us_equity",
	})
}

func (c *AlpacaClient) GetBars(ctx context.Context, symbol, timeframe string, limit int) (json.RawMessage, error) {
	return c.get(ctx, c.data, "/v2/stocks/"+symbol+"/bars", map[string]string{
		"timeframe": timeframe,
		"limit":     fmt.Sprintf("%d", limit),
	})
}

func (c *AlpacaClient) LatestTrade(ctx context.Context, symbol string) (json.RawMessage, error) {
	return c.get(ctx, c.data, "/v2/stocks/"+symbol+"/trades/latest", nil)
}

func (c *AlpacaClient) LatestQuote(ctx context.Context, symbol string) (json.RawMessage, error) {
	return c.get(ctx, c.data, "/v2/stocks/"+symbol+"/quotes/latest", nil)
}

func (c *AlpacaClient) ListOrders(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, c.trading, "/v2/orders", map[string]string{
		"status": "all",
		"limit":  "50",
		"nested": "true",
	})
}

func (c *AlpacaClient) ListPositions(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, c.trading, "/v2/positions", nil)
}

func (c *AlpacaClient) PlaceOrder(ctx context.Context, payload map[string]any) (int, json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	resp, err := c.trading.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/v2/orders")
	if err != nil {
		return 0, nil, errors.Wrap(err, "place order")
	}
	return resp.StatusCode(), rawBody(resp), nil
}

func (c *AlpacaClient) ClosePosition(ctx context.Context, symbol string) (int, json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	resp, err := c.trading.R().
		SetContext(ctx).
		SetQueryParam("cancel_orders", "true").
		Delete("/v2/positions/" + symbol)
	if err != nil {
		return 0, nil, errors.Wrap(err, "close position")
	}
	return resp.StatusCode(), rawBody(resp), nil
}

func (c *AlpacaClient) get(ctx context.Context, host *resty.Client, path string, params map[string]string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req := host.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}
	resp, err := req.Get(path)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", path)
	}
	if resp.IsError() {
		return nil, errors.Errorf("GET %s: http %d: %s", path, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}
	return json.RawMessage(resp.Body()), nil
}

// rawBody wraps a non-JSON upstream body so it stays representable in a
// JSON response.
func rawBody(resp *resty.Response) json.RawMessage {
	body := resp.Body()
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(body)})
	return wrapped
}
