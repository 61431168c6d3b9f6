package backend

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tradedesk/minibroker/pkg/models"
)

// The gateway proxies several upstream data vendors, so the same logical
// response arrives in more than one shape. Each entity gets a single
// resolution table here; the first candidate that resolves wins.

// Bar arrays arrive under one of these top-level keys, or as a bare array.
var barEnvelopeKeys = []string{"bars", "results"}

// Candidate field names for a bar's timestamp, in resolution order.
var barTimestampFields = []string{"t", "time", "timestamp", "start"}

// Candidate field names for a bar's close price.
var barCloseFields = []string{"c", "close"}

// Quote fields resolve through a nested shape first, then a flat one.
// Each field resolves independently: one may come from the nested shape
// while another comes from the flat shape.
var quotePaths = struct {
	last [][]string
	bid  [][]string
	ask  [][]string
}{
	last: [][]string{{"trade", "trade", "p"}, {"trade", "p"}},
	bid:  [][]string{{"quote", "quote", "bp"}, {"quote", "bp"}},
	ask:  [][]string{{"quote", "quote", "ap"}, {"quote", "ap"}},
}

// DecodeBars normalizes a bars response body into a flat bar slice. An
// unrecognized envelope resolves to an empty slice, not an error; only
// an unparsable body fails.
func DecodeBars(body []byte) ([]models.Bar, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	var raw []any
	switch v := payload.(type) {
	case []any:
		raw = v
	case map[string]any:
		for _, key := range barEnvelopeKeys {
			if arr, ok := v[key].([]any); ok {
				raw = arr
				break
			}
		}
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, item := range raw {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		bar := models.Bar{Timestamp: firstText(fields, barTimestampFields)}
		if close, ok := firstNumber(fields, barCloseFields); ok {
			bar.Close = close
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// DecodeQuote resolves last/bid/ask from a quote response body, leaving
// any field nil that no candidate path resolves.
func DecodeQuote(body []byte) (models.Quote, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Quote{}, err
	}
	return models.Quote{
		Last: resolveNumber(payload, quotePaths.last),
		Bid:  resolveNumber(payload, quotePaths.bid),
		Ask:  resolveNumber(payload, quotePaths.ask),
	}, nil
}

// BarLabel turns a raw timestamp into an axis label: the T date/time
// separator becomes a space and the result is truncated to the
// fixed-width "2006-01-02 15:04" prefix.
func BarLabel(timestamp string) string {
	label := strings.Replace(timestamp, "T", " ", 1)
	if len(label) > 16 {
		label = label[:16]
	}
	return label
}

func firstText(fields map[string]any, names []string) string {
	for _, name := range names {
		if v, ok := fields[name]; ok && v != nil {
			return asText(v)
		}
	}
	return ""
}

func firstNumber(fields map[string]any, names []string) (float64, bool) {
	for _, name := range names {
		if v, ok := fields[name]; ok {
			if n, ok := asNumber(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func resolveNumber(payload map[string]any, paths [][]string) *float64 {
	for _, path := range paths {
		var cur any = payload
		found := true
		for _, key := range path {
			obj, ok := cur.(map[string]any)
			if !ok {
				found = false
				break
			}
			if cur, ok = obj[key]; !ok {
				found = false
				break
			}
		}
		if !found {
			continue
		}
		if n, ok := asNumber(cur); ok {
			return &n
		}
	}
	return nil
}

func asText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		n, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
