package dashboard

import (
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// Form field names as submitted by the order form.
const (
	FieldSymbol        = "symbol"
	FieldQty           = "qty"
	FieldSide          = "side"
	FieldType          = "type"
	FieldTimeInForce   = "time_in_force"
	FieldLimitPrice    = "limit_price"
	FieldTakeProfit    = "tp_price"
	FieldStopLoss      = "sl_price"
	FieldExtendedHours = "extended_hours"
)

var numericFields = map[string]bool{
	FieldQty:        true,
	FieldLimitPrice: true,
	FieldTakeProfit: true,
	FieldStopLoss:   true,
}

// BuildOrderPayload serializes submitted form fields into an order
// payload. Fields with empty values are omitted entirely, quantity and
// price fields are coerced to numbers, and everything else passes
// through as text.
//
// extended_hours follows checkbox wire semantics: any presence of the
// field in the submitted set maps to boolean true, its literal value is
// ignored, and absence omits the key rather than sending false.
func BuildOrderPayload(fields url.Values) (map[string]any, error) {
	payload := make(map[string]any, len(fields))
	for key, values := range fields {
		if key == FieldExtendedHours {
			payload[key] = true
			continue
		}
		if len(values) == 0 {
			continue
		}
		value := values[0]
		if value == "" {
			continue
		}
		if numericFields[key] {
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, errors.Errorf("field %s is not numeric: %q", key, value)
			}
			payload[key] = n
			continue
		}
		payload[key] = value
	}
	return payload, nil
}
