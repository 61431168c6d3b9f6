package ui

import (
	"net/url"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tradedesk/minibroker/pkg/dashboard"
	"github.com/tradedesk/minibroker/pkg/models"
)

// refreshMsg tells the program that shared display state changed and a
// re-render is due.
type refreshMsg struct{}

// regions holds the text of every display region. Fetches complete on
// their own goroutines in any order, so all access goes through the
// View's mutex; the model renders from snapshots.
type regions struct {
	AcctID      string
	AcctStatus  string
	AcctBlocked string
	Clock       string

	Assets     []models.Asset
	Summary    string
	CatalogErr string

	Symbol      string
	ChartRev    int
	ChartHint   string
	QuoteHint   string
	OrderResult string
	Orders      string
	Positions   string
}

// form is the operator's order-form input state. It lives here rather
// than in the model because the quote advisor reads and fills the
// limit-price input from fetch goroutines.
type form struct {
	Search     string
	Qty        string
	Side       models.OrderSide
	Type       models.OrderType
	TIF        models.TimeInForce
	LimitPrice string
	TPPrice    string
	SLPrice    string
	ExtHours   bool
}

// View implements dashboard.View for the terminal program. Region
// writes wake the program with a refresh message.
type View struct {
	mu      sync.Mutex
	program *tea.Program
	regions regions
	form    form
}

func NewView() *View {
	return &View{
		regions: regions{
			AcctID:      "...",
			AcctStatus:  "...",
			AcctBlocked: "...",
			Clock:       "...",
			Summary:     "Loading assets...",
		},
		form: form{
			Side: models.OrderSideBuy,
			Type: models.OrderTypeMarket,
			TIF:  models.TimeInForceGTC,
		},
	}
}

// Attach wires the running program in; region writes before this point
// update state silently.
func (v *View) Attach(p *tea.Program) {
	v.mu.Lock()
	v.program = p
	v.mu.Unlock()
}

func (v *View) set(apply func(*regions)) {
	v.mu.Lock()
	apply(&v.regions)
	p := v.program
	v.mu.Unlock()
	if p != nil {
		p.Send(refreshMsg{})
	}
}

func (v *View) SetAccount(id, status, blocked string) {
	v.set(func(r *regions) {
		r.AcctID, r.AcctStatus, r.AcctBlocked = id, status, blocked
	})
}

func (v *View) SetClock(text string) {
	v.set(func(r *regions) { r.Clock = text })
}

func (v *View) SetCatalog(assets []models.Asset, summary string) {
	v.set(func(r *regions) {
		r.Assets = assets
		r.Summary = summary
		r.CatalogErr = ""
	})
}

func (v *View) SetCatalogError(message string) {
	v.set(func(r *regions) { r.CatalogErr = message })
}

func (v *View) SetSymbol(symbol string) {
	v.set(func(r *regions) { r.Symbol = symbol })
}

func (v *View) ChartUpdated(symbol string) {
	v.set(func(r *regions) {
		r.Symbol = symbol
		r.ChartRev++
	})
}

func (v *View) SetChartHint(hint string) {
	v.set(func(r *regions) { r.ChartHint = hint })
}

func (v *View) SetQuoteHint(hint string) {
	v.set(func(r *regions) { r.QuoteHint = hint })
}

func (v *View) LimitPrice() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.form.LimitPrice
}

func (v *View) SetLimitPrice(value string) {
	v.mu.Lock()
	v.form.LimitPrice = value
	p := v.program
	v.mu.Unlock()
	if p != nil {
		p.Send(refreshMsg{})
	}
}

func (v *View) SetOrderResult(text string) {
	v.set(func(r *regions) { r.OrderResult = text })
}

func (v *View) SetOrders(text string) {
	v.set(func(r *regions) { r.Orders = text })
}

func (v *View) SetPositions(text string) {
	v.set(func(r *regions) { r.Positions = text })
}

func (v *View) snapshot() (regions, form) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.regions, v.form
}

func (v *View) editForm(apply func(*form)) {
	v.mu.Lock()
	apply(&v.form)
	v.mu.Unlock()
}

// orderFields assembles the submitted field set the way a form post
// would: every text input participates (the payload builder drops the
// empty ones) and the extended-hours field is present only when the
// toggle is on, mirroring checkbox semantics.
func (v *View) orderFields() url.Values {
	v.mu.Lock()
	defer v.mu.Unlock()

	fields := url.Values{}
	fields.Set(dashboard.FieldSymbol, v.regions.Symbol)
	fields.Set(dashboard.FieldQty, v.form.Qty)
	fields.Set(dashboard.FieldSide, string(v.form.Side))
	fields.Set(dashboard.FieldType, string(v.form.Type))
	fields.Set(dashboard.FieldTimeInForce, string(v.form.TIF))
	fields.Set(dashboard.FieldLimitPrice, v.form.LimitPrice)
	fields.Set(dashboard.FieldTakeProfit, v.form.TPPrice)
	fields.Set(dashboard.FieldStopLoss, v.form.SLPrice)
	if v.form.ExtHours {
		fields.Set(dashboard.FieldExtendedHours, "on")
	}
	return fields
}

var _ dashboard.View = (*View)(nil)
