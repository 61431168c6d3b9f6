package dashboard

import (
	"encoding/json"
	"strconv"
)

// prettyJSON re-serializes a JSON body with indentation for display,
// falling back to the raw text when it does not parse.
func prettyJSON(raw string) string {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	out, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return raw
	}
	return string(out)
}

// fmtPrice renders an optional price, substituting the placeholder the
// quote hint uses for unresolved values.
func fmtPrice(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
