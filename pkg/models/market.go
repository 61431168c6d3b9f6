package models

// Bar is one price sample for a symbol over a timeframe. Only the
// timestamp and close are consumed; the timestamp is kept as the raw
// text the backend sent since the labeling rules operate on text.
type Bar struct {
	Timestamp string
	Close     float64
}

// Quote carries the current best bid/ask and last trade price for a
// symbol. Any of the three may be absent from the backend response, so
// each field is a pointer and resolves independently.
type Quote struct {
	Last *float64
	Bid  *float64
	Ask  *float64
}

// OrderResult is the opaque pass-through outcome of an order
// submission: the literal HTTP status plus the unparsed response body.
type OrderResult struct {
	HTTPStatus int
	RawBody    string
}
