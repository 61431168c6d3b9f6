package models

// Asset is an immutable entry in the tradeable-instrument catalog.
type Asset struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Exchange  string `json:"exchange"`
	Tradeable bool   `json:"tradable"`
}
