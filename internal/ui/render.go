package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tradedesk/minibroker/pkg/models"
)

const (
	catalogWidth  = 36
	catalogRows   = 14
	bottomRows    = 10
	chartHeight   = 12
	minTermWidth  = 80
	minTermHeight = 30
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	paneStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m *Model) View() string {
	if m.width < minTermWidth || m.height < minTermHeight {
		return "Terminal too small. Resize to at least 80x30."
	}

	r, f := m.view.snapshot()

	header := m.renderHeader(r)
	left := m.renderCatalog(r, f)
	right := m.renderMain(r, f)
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	bottom := m.renderBottom(r)
	help := helpStyle.Render(
		"tab focus | enter select/toggle | ^T timeframe | ^G quote | ^L live | ^S submit | ^X close pos | ^R status | ^O orders | ^P positions | esc quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, body, bottom, help)
}

func (m *Model) renderHeader(r regions) string {
	status := fmt.Sprintf("Account: %s  Status: %s  Blocked: %s  Market: %s",
		r.AcctID, r.AcctStatus, r.AcctBlocked, r.Clock)
	return headerStyle.Width(m.width).Render(status)
}

func (m *Model) renderCatalog(r regions, f form) string {
	var b strings.Builder

	marker := "  "
	if m.focus == focusSearch {
		marker = focusStyle.Render("> ")
	}
	b.WriteString(marker + labelStyle.Render("Search: ") + valueStyle.Render(f.Search+"▏"))
	b.WriteString("\n")

	if r.CatalogErr != "" {
		b.WriteString(errorStyle.Render(r.CatalogErr))
	} else {
		b.WriteString(labelStyle.Render(r.Summary))
	}
	b.WriteString("\n\n")

	cursor := m.cursor
	if cursor >= len(r.Assets) && len(r.Assets) > 0 {
		cursor = len(r.Assets) - 1
	}
	start := 0
	if cursor >= catalogRows {
		start = cursor - catalogRows + 1
	}
	for i := start; i < len(r.Assets) && i < start+catalogRows; i++ {
		line := assetLine(r.Assets[i], catalogWidth-4)
		if i == cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	return paneStyle.Width(catalogWidth).Render(b.String())
}

func assetLine(a models.Asset, width int) string {
	line := fmt.Sprintf("%-6s %s", a.Symbol, a.Name)
	return truncate(line, width)
}

func (m *Model) renderMain(r regions, f form) string {
	var b strings.Builder

	title := "No symbol selected"
	if r.Symbol != "" {
		title = fmt.Sprintf("%s  [%s]", r.Symbol, m.ctrl.Timeframe())
	}
	b.WriteString(headerStyle.Render(title) + "\n")

	chartWidth := m.width - catalogWidth - 8
	if r.ChartHint != "" {
		b.WriteString(errorStyle.Render(r.ChartHint) + "\n")
	} else if plot := m.ctrl.ChartView(chartWidth, chartHeight); plot != "" {
		b.WriteString(plot + "\n")
	} else {
		b.WriteString(labelStyle.Render("Select an asset to draw its chart.") + "\n")
	}

	if r.QuoteHint != "" {
		b.WriteString(labelStyle.Render("Quote: ") + valueStyle.Render(r.QuoteHint) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(m.renderForm(f))

	if r.OrderResult != "" {
		b.WriteString("\n" + valueStyle.Render(truncateLines(r.OrderResult, 8)) + "\n")
	}

	return paneStyle.Width(m.width - catalogWidth - 2).Render(b.String())
}

func (m *Model) renderForm(f form) string {
	field := func(focus focusField, label, value string) string {
		text := labelStyle.Render(label+": ") + valueStyle.Render(value)
		if m.focus == focus {
			return focusStyle.Render("> ") + text
		}
		return "  " + text
	}
	ext := "off"
	if f.ExtHours {
		ext = "on"
	}

	row1 := strings.Join([]string{
		field(focusQty, "Qty", f.Qty+"▏"),
		field(focusSide, "Side", string(f.Side)),
		field(focusType, "Type", string(f.Type)),
		field(focusTIF, "TIF", string(f.TIF)),
	}, "   ")
	row2 := strings.Join([]string{
		field(focusLimit, "Limit", f.LimitPrice+"▏"),
		field(focusTP, "TP", f.TPPrice+"▏"),
		field(focusSL, "SL", f.SLPrice+"▏"),
		field(focusExt, "ExtHrs", ext),
	}, "   ")
	return row1 + "\n" + row2 + "\n"
}

func (m *Model) renderBottom(r regions) string {
	half := (m.width - 6) / 2

	orders := paneStyle.Width(half).Render(
		headerStyle.Render("Orders") + "\n" + truncateLines(r.Orders, bottomRows))
	positions := paneStyle.Width(half).Render(
		headerStyle.Render("Positions") + "\n" + truncateLines(r.Positions, bottomRows))

	return lipgloss.JoinHorizontal(lipgloss.Top, orders, positions)
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	if width <= 1 {
		return s[:width]
	}
	return s[:width-1] + "…"
}

func truncateLines(s string, max int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	return strings.Join(lines[:max], "\n") + "\n…"
}
