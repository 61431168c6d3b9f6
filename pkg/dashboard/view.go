package dashboard

import "github.com/tradedesk/minibroker/pkg/models"

// View is the narrow presentation surface the controller renders into.
// Each method targets one display region; the controller never touches
// presentation state except through it. Implementations must be safe
// for concurrent calls since independent fetches complete in any order.
type View interface {
	SetAccount(id, status, blocked string)
	SetClock(text string)

	SetCatalog(assets []models.Asset, summary string)
	SetCatalogError(message string)

	SetSymbol(symbol string)
	ChartUpdated(symbol string)
	SetChartHint(hint string)

	SetQuoteHint(hint string)
	// LimitPrice reports the operator's current limit-price input so the
	// quote advisor can avoid overwriting a hand-entered value.
	LimitPrice() string
	SetLimitPrice(value string)

	SetOrderResult(text string)
	SetOrders(text string)
	SetPositions(text string)
}
