package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tradedesk/minibroker/pkg/models"
)

// Client is the narrow interface the dashboard consumes; the gateway's
// internals stay behind it.
type Client interface {
	Ping(ctx context.Context) error
	GetAccount(ctx context.Context) (*models.Account, error)
	GetClock(ctx context.Context) (*models.Clock, error)
	ListAssets(ctx context.Context) ([]models.Asset, error)
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error)
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	RawOrders(ctx context.Context) (string, error)
	RawPositions(ctx context.Context) (string, error)
	PlaceOrder(ctx context.Context, payload map[string]any) (*models.OrderResult, error)
	ClosePosition(ctx context.Context, symbol string) (*models.OrderResult, error)
}

// RequestError wraps a failed gateway call. Network is true when the
// request itself could not complete (no HTTP response was received), as
// opposed to a response that was received but unusable.
type RequestError struct {
	Op      string
	Network bool
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err represents a request that never
// received an HTTP response.
func IsNetworkError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Network
}

type RestClient struct {
	http   *resty.Client
	logger *logrus.Logger
}

func NewRestClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *RestClient {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &RestClient{http: client, logger: logger}
}

func (c *RestClient) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/api/ping", nil)
	return err
}

func (c *RestClient) GetAccount(ctx context.Context) (*models.Account, error) {
	body, err := c.get(ctx, "/api/account", nil)
	if err != nil {
		return nil, err
	}
	var account models.Account
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, &RequestError{Op: "account", Err: errors.Wrap(err, "decode response")}
	}
	return &account, nil
}

func (c *RestClient) GetClock(ctx context.Context) (*models.Clock, error) {
	body, err := c.get(ctx, "/api/clock", nil)
	if err != nil {
		return nil, err
	}
	var clock models.Clock
	if err := json.Unmarshal(body, &clock); err != nil {
		return nil, &RequestError{Op: "clock", Err: errors.Wrap(err, "decode response")}
	}
	return &clock, nil
}

func (c *RestClient) ListAssets(ctx context.Context) ([]models.Asset, error) {
	body, err := c.get(ctx, "/api/assets", nil)
	if err != nil {
		return nil, err
	}
	var assets []models.Asset
	if err := json.Unmarshal(body, &assets); err != nil {
		return nil, &RequestError{Op: "assets", Err: errors.Wrap(err, "decode response")}
	}
	return assets, nil
}

func (c *RestClient) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error) {
	body, err := c.get(ctx, "/api/bars", map[string]string{
		"symbol":    symbol,
		"timeframe": timeframe,
		"limit":     fmt.Sprintf("%d", limit),
	})
	if err != nil {
		return nil, err
	}
	bars, err := DecodeBars(body)
	if err != nil {
		return nil, &RequestError{Op: "bars", Err: errors.Wrap(err, "decode response")}
	}
	return bars, nil
}

func (c *RestClient) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	body, err := c.get(ctx, "/api/quote", map[string]string{"symbol": symbol})
	if err != nil {
		return models.Quote{}, err
	}
	quote, err := DecodeQuote(body)
	if err != nil {
		return models.Quote{}, &RequestError{Op: "quote", Err: errors.Wrap(err, "decode response")}
	}
	return quote, nil
}

func (c *RestClient) RawOrders(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/api/orders", nil)
	return string(body), err
}

func (c *RestClient) RawPositions(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/api/positions", nil)
	return string(body), err
}

// PlaceOrder posts the payload and passes any HTTP response through
// verbatim, success status or not. Only a request that never completes
// returns an error.
func (c *RestClient) PlaceOrder(ctx context.Context, payload map[string]any) (*models.OrderResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/api/order")
	if err != nil {
		return nil, &RequestError{Op: "order", Network: true, Err: err}
	}
	return &models.OrderResult{HTTPStatus: resp.StatusCode(), RawBody: string(resp.Body())}, nil
}

func (c *RestClient) ClosePosition(ctx context.Context, symbol string) (*models.OrderResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"symbol": symbol}).
		Post("/api/close_position")
	if err != nil {
		return nil, &RequestError{Op: "close_position", Network: true, Err: err}
	}
	return &models.OrderResult{HTTPStatus: resp.StatusCode(), RawBody: string(resp.Body())}, nil
}

func (c *RestClient) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}
	resp, err := req.Get(path)
	if err != nil {
		return nil, &RequestError{Op: strings.TrimPrefix(path, "/api/"), Network: true, Err: err}
	}
	if resp.IsError() {
		return nil, &RequestError{
			Op:  strings.TrimPrefix(path, "/api/"),
			Err: errors.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body()))),
		}
	}
	return resp.Body(), nil
}
