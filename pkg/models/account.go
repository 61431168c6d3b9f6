package models

// Account is a read-only snapshot of the trading account, refetched on
// demand and never cached across refreshes.
type Account struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	TradingBlocked bool   `json:"trading_blocked"`
}

// Clock is a read-only snapshot of the market clock.
type Clock struct {
	IsOpen   bool   `json:"is_open"`
	NextOpen string `json:"next_open"`
}
