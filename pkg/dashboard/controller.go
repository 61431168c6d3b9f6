package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tradedesk/minibroker/pkg/backend"
	"github.com/tradedesk/minibroker/pkg/chart"
	"github.com/tradedesk/minibroker/pkg/models"
)

const defaultBarLimit = 200

// Config carries the controller's tunables.
type Config struct {
	// GatewayURL is used to open the live quote stream.
	GatewayURL string
	// DefaultTimeframe is the bar granularity before the operator picks one.
	DefaultTimeframe string
	// BarLimit caps how many bars a chart draw requests (default 200).
	BarLimit int
}

// Controller is the orchestration core of the dashboard. It owns the
// asset catalog, the single live chart resource, and the per-operation
// request counters, and renders every outcome through the View. No
// other code mutates that state.
type Controller struct {
	cfg    Config
	client backend.Client
	engine chart.Engine
	diag   *backend.Reporter
	view   View
	logger *logrus.Logger

	mu        sync.Mutex
	catalog   []models.Asset
	loaded    bool
	symbol    string
	timeframe string
	chart     chart.Handle
	stream    *backend.QuoteStream

	// Monotonic request ids: a completion whose id is no longer the
	// latest issued for its operation kind is discarded, so an
	// earlier-issued-but-later-arriving response can never overwrite a
	// newer selection's display.
	chartSeq uint64
	quoteSeq uint64
}

func NewController(cfg Config, client backend.Client, engine chart.Engine, diag *backend.Reporter, view View, logger *logrus.Logger) *Controller {
	if cfg.BarLimit <= 0 {
		cfg.BarLimit = defaultBarLimit
	}
	if cfg.DefaultTimeframe == "" {
		cfg.DefaultTimeframe = "1Day"
	}
	return &Controller{
		cfg:       cfg,
		client:    client,
		engine:    engine,
		diag:      diag,
		view:      view,
		logger:    logger,
		timeframe: cfg.DefaultTimeframe,
	}
}

// Guard runs fn and converts a panic into a diagnostic report instead
// of letting it take down the event loop. Used by the UI around every
// handler, mirroring the component-isolation rule: a failure in one
// handler never halts the others.
func (c *Controller) Guard(where string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("where", where).Errorf("Recovered from panic: %v", r)
			if c.diag != nil {
				c.diag.Report("error", fmt.Sprint(r), string(debug.Stack()), where)
			}
		}
	}()
	fn()
}

// RefreshStatus fetches account and clock state as two independent
// operations; a failure in one never blocks or invalidates the other.
func (c *Controller) RefreshStatus(ctx context.Context) {
	account, err := c.client.GetAccount(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Account fetch failed")
		c.view.SetAccount("err", "err", "err")
	} else {
		c.view.SetAccount(account.ID, account.Status, strconv.FormatBool(account.TradingBlocked))
	}

	clock, err := c.client.GetClock(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Clock fetch failed")
		c.view.SetClock("err")
		return
	}
	if clock.IsOpen {
		c.view.SetClock("OPEN")
	} else {
		label := "CLOSED"
		if clock.NextOpen != "" {
			label += " " + clock.NextOpen
		}
		c.view.SetClock(label)
	}
}

// LoadCatalog fetches the instrument list once and keeps it for the
// session. A failed load leaves the catalog empty; a later call may
// retry, but a successful load is never repeated or replaced.
func (c *Controller) LoadCatalog(ctx context.Context) {
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	assets, err := c.client.ListAssets(ctx)
	if err != nil {
		c.logger.WithError(err).Error("Asset catalog load failed")
		c.view.SetCatalogError("Failed to load assets.")
		return
	}

	c.mu.Lock()
	c.catalog = assets
	c.loaded = true
	c.mu.Unlock()

	c.logger.WithField("count", len(assets)).Info("Asset catalog loaded")
	c.view.SetCatalog(assets, fmt.Sprintf("Loaded %d assets.", len(assets)))
}

// FilterAssets is a pure projection over the catalog: case-insensitive
// substring match against symbol or name. An empty term returns the
// input unchanged. The input slice is never mutated.
func FilterAssets(catalog []models.Asset, term string) []models.Asset {
	term = strings.ToUpper(strings.TrimSpace(term))
	if term == "" {
		return catalog
	}
	out := make([]models.Asset, 0, len(catalog))
	for _, a := range catalog {
		if strings.Contains(strings.ToUpper(a.Symbol), term) ||
			strings.Contains(strings.ToUpper(a.Name), term) {
			out = append(out, a)
		}
	}
	return out
}

// Filter renders the catalog narrowed to term.
func (c *Controller) Filter(term string) {
	c.mu.Lock()
	catalog := c.catalog
	c.mu.Unlock()

	if strings.TrimSpace(term) == "" {
		c.view.SetCatalog(catalog, fmt.Sprintf("Loaded %d assets.", len(catalog)))
		return
	}
	matched := FilterAssets(catalog, term)
	c.view.SetCatalog(matched, fmt.Sprintf("Results: %d/%d", len(matched), len(catalog)))
}

// Select makes symbol the active instrument: clears stale order
// feedback, stops any live quote stream for the prior symbol, and
// redraws the chart at the current timeframe.
func (c *Controller) Select(ctx context.Context, symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return
	}
	c.StopQuoteStream()
	c.view.SetOrderResult("")

	c.mu.Lock()
	timeframe := c.timeframe
	c.mu.Unlock()

	c.DrawChart(ctx, symbol, timeframe)
}

func (c *Controller) Symbol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symbol
}

func (c *Controller) Timeframe() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeframe
}

// SetTimeframe changes the bar granularity and redraws the active
// symbol, if any.
func (c *Controller) SetTimeframe(ctx context.Context, timeframe string) {
	c.mu.Lock()
	c.timeframe = timeframe
	symbol := c.symbol
	c.mu.Unlock()

	if symbol != "" {
		c.DrawChart(ctx, symbol, timeframe)
	}
}

// DrawChart fetches bars for (symbol, timeframe) and replaces the
// single live chart resource. A draw that is no longer the latest
// issued is discarded before any state or view write.
func (c *Controller) DrawChart(ctx context.Context, symbol, timeframe string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return
	}
	seq := atomic.AddUint64(&c.chartSeq, 1)

	if !c.beginDraw(seq, symbol, timeframe) {
		return
	}
	c.view.SetSymbol(symbol)

	bars, err := c.client.GetBars(ctx, symbol, timeframe, c.cfg.BarLimit)
	if atomic.LoadUint64(&c.chartSeq) != seq {
		return
	}
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Bars fetch failed")
		c.view.SetChartHint("Chart data error.")
		return
	}
	if len(bars) == 0 {
		c.view.SetChartHint("No data available.")
		return
	}
	if c.engine == nil {
		c.view.SetChartHint("Chart renderer unavailable.")
		return
	}

	labels := make([]string, len(bars))
	values := make([]float64, len(bars))
	for i, bar := range bars {
		labels[i] = backend.BarLabel(bar.Timestamp)
		values[i] = bar.Close
	}

	c.mu.Lock()
	if atomic.LoadUint64(&c.chartSeq) != seq {
		c.mu.Unlock()
		return
	}
	// Destroy-then-create keeps the live resource count at most one at
	// every point, including across overlapping draws.
	if c.chart != nil {
		c.chart.Destroy()
		c.chart = nil
	}
	handle, err := c.engine.NewLineChart(chart.Series{
		Title:  symbol + " close",
		Labels: labels,
		Values: values,
	})
	if err != nil {
		c.mu.Unlock()
		if Classify(err) == FailureCapability {
			c.view.SetChartHint("Chart renderer unavailable.")
		} else {
			c.view.SetChartHint("Chart data error.")
		}
		return
	}
	c.chart = handle
	c.mu.Unlock()

	c.view.SetChartHint("")
	c.view.ChartUpdated(symbol)
}

// beginDraw publishes the draw's symbol and timeframe, unless a newer
// draw was issued in the meantime. The seq check runs under the mutex
// so a stale goroutine scheduled late can never clobber a newer
// selection's state.
func (c *Controller) beginDraw(seq uint64, symbol, timeframe string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if atomic.LoadUint64(&c.chartSeq) != seq {
		return false
	}
	c.symbol = symbol
	c.timeframe = timeframe
	return true
}

// ChartView renders the current chart resource, or an empty string if
// none is live.
func (c *Controller) ChartView(width, height int) string {
	c.mu.Lock()
	handle := c.chart
	c.mu.Unlock()

	if handle == nil {
		return ""
	}
	return handle.View(width, height)
}

// SuggestQuote fetches a quote for the active symbol and renders the
// price hint. The suggested last price fills the limit input only when
// the operator has not typed one.
func (c *Controller) SuggestQuote(ctx context.Context) {
	c.mu.Lock()
	symbol := c.symbol
	c.mu.Unlock()
	if symbol == "" {
		return
	}
	seq := atomic.AddUint64(&c.quoteSeq, 1)

	quote, err := c.client.GetQuote(ctx, symbol)
	if atomic.LoadUint64(&c.quoteSeq) != seq {
		return
	}
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Quote fetch failed")
		c.view.SetQuoteHint("N/A")
		return
	}
	c.applyQuote(quote, true)
}

func (c *Controller) applyQuote(quote models.Quote, autofill bool) {
	hint := fmt.Sprintf("Last: %s | Bid: %s | Ask: %s",
		fmtPrice(quote.Last), fmtPrice(quote.Bid), fmtPrice(quote.Ask))
	c.view.SetQuoteHint(hint)

	if autofill && quote.Last != nil && c.view.LimitPrice() == "" {
		c.view.SetLimitPrice(fmtPrice(quote.Last))
	}
}

// StartQuoteStream opens the live quote feed for the active symbol.
// Streamed quotes update the hint but never touch the limit input.
func (c *Controller) StartQuoteStream(ctx context.Context) error {
	c.mu.Lock()
	symbol := c.symbol
	active := c.stream != nil
	c.mu.Unlock()

	if symbol == "" || active {
		return nil
	}

	stream, err := backend.NewQuoteStream(c.cfg.GatewayURL, symbol, func(_ string, quote models.Quote) {
		c.applyQuote(quote, false)
	}, c.logger)
	if err != nil {
		return err
	}
	if err := stream.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
	c.logger.WithField("symbol", symbol).Info("Live quote stream started")
	return nil
}

// StreamActive reports whether a live quote stream is running. The UI
// derives its toggle state from this rather than tracking its own,
// since selection changes also stop the stream.
func (c *Controller) StreamActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

func (c *Controller) StopQuoteStream() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
}

// SubmitOrder serializes the form into an order payload and posts it.
// Any HTTP response, success status or not, is displayed verbatim and
// triggers a refresh of the orders and positions views; a request that
// never completes shows a distinct network error and refreshes nothing.
func (c *Controller) SubmitOrder(ctx context.Context, fields url.Values) {
	payload, err := BuildOrderPayload(fields)
	if err != nil {
		c.view.SetOrderResult("Invalid order: " + err.Error())
		return
	}

	c.view.SetOrderResult("Sending order...")
	result, err := c.client.PlaceOrder(ctx, payload)
	if err != nil {
		c.logger.WithError(err).Error("Order submission failed")
		c.view.SetOrderResult(fmt.Sprintf("Network error: %v", err))
		return
	}

	c.view.SetOrderResult(fmt.Sprintf("HTTP %d\n%s", result.HTTPStatus, prettyJSON(result.RawBody)))
	c.RefreshOrders(ctx)
	c.RefreshPositions(ctx)
}

// ClosePosition liquidates the position in symbol and surfaces the
// outcome in the order-result region.
func (c *Controller) ClosePosition(ctx context.Context, symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return
	}

	c.view.SetOrderResult("Closing position " + symbol + "...")
	result, err := c.client.ClosePosition(ctx, symbol)
	if err != nil {
		c.logger.WithError(err).Error("Close position failed")
		c.view.SetOrderResult(fmt.Sprintf("Network error: %v", err))
		return
	}

	c.view.SetOrderResult(fmt.Sprintf("HTTP %d\n%s", result.HTTPStatus, prettyJSON(result.RawBody)))
	c.RefreshOrders(ctx)
	c.RefreshPositions(ctx)
}

func (c *Controller) RefreshOrders(ctx context.Context) {
	raw, err := c.client.RawOrders(ctx)
	if err != nil {
		c.view.SetOrders(err.Error())
		return
	}
	c.view.SetOrders(prettyJSON(raw))
}

func (c *Controller) RefreshPositions(ctx context.Context) {
	raw, err := c.client.RawPositions(ctx)
	if err != nil {
		c.view.SetPositions(err.Error())
		return
	}
	c.view.SetPositions(prettyJSON(raw))
}

// Shutdown releases held resources at the end of the session.
func (c *Controller) Shutdown() {
	c.StopQuoteStream()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chart != nil {
		c.chart.Destroy()
		c.chart = nil
	}
}
