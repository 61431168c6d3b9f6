package ui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/tradedesk/minibroker/pkg/dashboard"
	"github.com/tradedesk/minibroker/pkg/models"
)

const opTimeout = 30 * time.Second

// focusField indexes the focusable form inputs in tab order.
type focusField int

const (
	focusSearch focusField = iota
	focusQty
	focusSide
	focusType
	focusTIF
	focusLimit
	focusTP
	focusSL
	focusExt
	focusCount
)

var timeframes = []string{"1Min", "5Min", "15Min", "1Hour", "1Day"}

// Model is the terminal dashboard. All broker work runs through the
// controller on command goroutines; the model itself only tracks input
// focus, the catalog cursor, and window geometry.
type Model struct {
	ctrl   *dashboard.Controller
	view   *View
	logger *logrus.Logger

	width  int
	height int
	focus  focusField
	cursor int
}

func NewModel(ctrl *dashboard.Controller, view *View, logger *logrus.Logger) *Model {
	return &Model{ctrl: ctrl, view: view, logger: logger}
}

// op runs a controller operation on its own goroutine, panic-guarded,
// with a bounded context. Region updates arrive back as refresh
// messages via the View.
func (m *Model) op(where string, fn func(ctx context.Context)) tea.Cmd {
	return func() tea.Msg {
		m.ctrl.Guard(where, func() {
			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			fn(ctx)
		})
		return nil
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.op("status", m.ctrl.RefreshStatus),
		m.op("catalog", m.ctrl.LoadCatalog),
		m.op("orders", m.ctrl.RefreshOrders),
		m.op("positions", m.ctrl.RefreshPositions),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case refreshMsg:
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab":
		m.focus = (m.focus + 1) % focusCount
		return m, nil
	case "shift+tab":
		m.focus = (m.focus + focusCount - 1) % focusCount
		return m, nil
	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down":
		m.cursor++
		return m, nil
	case "enter":
		return m.handleEnter()
	case "ctrl+r":
		return m, m.op("status", m.ctrl.RefreshStatus)
	case "ctrl+g":
		return m, m.op("quote", m.ctrl.SuggestQuote)
	case "ctrl+t":
		return m, m.cycleTimeframe()
	case "ctrl+l":
		return m, m.toggleStream()
	case "ctrl+s":
		fields := m.view.orderFields()
		return m, m.op("order", func(ctx context.Context) {
			m.ctrl.SubmitOrder(ctx, fields)
		})
	case "ctrl+o":
		return m, m.op("orders", m.ctrl.RefreshOrders)
	case "ctrl+p":
		return m, m.op("positions", m.ctrl.RefreshPositions)
	case "ctrl+x":
		symbol := m.ctrl.Symbol()
		return m, m.op("close", func(ctx context.Context) {
			m.ctrl.ClosePosition(ctx, symbol)
		})
	case "backspace":
		return m.editFocused(func(s string) string {
			if s == "" {
				return s
			}
			return s[:len(s)-1]
		})
	}

	if msg.Type == tea.KeyRunes || msg.String() == " " {
		return m.typeInto(string(msg.Runes), msg.String() == " ")
	}
	return m, nil
}

// handleEnter selects the highlighted catalog row when the search box
// has focus, and acts as a toggle everywhere a toggle has focus. A
// search term matching no catalog row is treated as a manually entered
// symbol, so instruments outside the catalog can still be charted.
func (m *Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.focus {
	case focusSearch:
		symbol := ""
		if asset, ok := m.highlighted(); ok {
			symbol = asset.Symbol
		} else {
			_, f := m.view.snapshot()
			symbol = strings.TrimSpace(f.Search)
		}
		if symbol == "" {
			return m, nil
		}
		return m, m.op("select", func(ctx context.Context) {
			m.ctrl.Select(ctx, symbol)
		})
	case focusSide, focusType, focusTIF, focusExt:
		m.toggleFocused()
		return m, nil
	}
	return m, nil
}

func (m *Model) highlighted() (models.Asset, bool) {
	r, _ := m.view.snapshot()
	if len(r.Assets) == 0 {
		return models.Asset{}, false
	}
	if m.cursor >= len(r.Assets) {
		m.cursor = len(r.Assets) - 1
	}
	return r.Assets[m.cursor], true
}

func (m *Model) typeInto(runes string, isSpace bool) (tea.Model, tea.Cmd) {
	switch m.focus {
	case focusSide, focusType, focusTIF, focusExt:
		if isSpace {
			m.toggleFocused()
		}
		return m, nil
	}
	if isSpace && m.focus != focusSearch {
		return m, nil
	}
	if isSpace {
		runes = " "
	}
	return m.editFocused(func(s string) string { return s + runes })
}

func (m *Model) editFocused(edit func(string) string) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.view.editForm(func(f *form) {
		switch m.focus {
		case focusSearch:
			f.Search = edit(f.Search)
			term := f.Search
			m.cursor = 0
			cmd = func() tea.Msg {
				m.ctrl.Guard("filter", func() { m.ctrl.Filter(term) })
				return nil
			}
		case focusQty:
			f.Qty = edit(f.Qty)
		case focusLimit:
			f.LimitPrice = edit(f.LimitPrice)
		case focusTP:
			f.TPPrice = edit(f.TPPrice)
		case focusSL:
			f.SLPrice = edit(f.SLPrice)
		}
	})
	return m, cmd
}

func (m *Model) toggleFocused() {
	m.view.editForm(func(f *form) {
		switch m.focus {
		case focusSide:
			if f.Side == models.OrderSideBuy {
				f.Side = models.OrderSideSell
			} else {
				f.Side = models.OrderSideBuy
			}
		case focusType:
			if f.Type == models.OrderTypeMarket {
				f.Type = models.OrderTypeLimit
			} else {
				f.Type = models.OrderTypeMarket
			}
		case focusTIF:
			if f.TIF == models.TimeInForceGTC {
				f.TIF = models.TimeInForceDay
			} else {
				f.TIF = models.TimeInForceGTC
			}
		case focusExt:
			f.ExtHours = !f.ExtHours
		}
	})
}

func (m *Model) cycleTimeframe() tea.Cmd {
	current := m.ctrl.Timeframe()
	next := timeframes[0]
	for i, tf := range timeframes {
		if tf == current {
			next = timeframes[(i+1)%len(timeframes)]
			break
		}
	}
	return m.op("timeframe", func(ctx context.Context) {
		m.ctrl.SetTimeframe(ctx, next)
	})
}

func (m *Model) toggleStream() tea.Cmd {
	if m.ctrl.StreamActive() {
		return m.op("stream", func(context.Context) {
			m.ctrl.StopQuoteStream()
		})
	}
	return m.op("stream", func(ctx context.Context) {
		if err := m.ctrl.StartQuoteStream(ctx); err != nil {
			m.logger.WithError(err).Warn("Quote stream failed to start")
			m.view.SetQuoteHint("N/A")
		}
	})
}
