package dashboard

import (
	"github.com/pkg/errors"

	"github.com/tradedesk/minibroker/pkg/backend"
	"github.com/tradedesk/minibroker/pkg/chart"
)

// FailureKind classifies a component failure. Every failure is caught
// at the component boundary and rendered into that component's own
// display region; none halts the rest of the dashboard.
type FailureKind int

const (
	// FailureNone means the operation completed.
	FailureNone FailureKind = iota
	// FailureNetwork means the request itself could not complete.
	FailureNetwork
	// FailureApplication means a response arrived but was empty,
	// unparsable, or semantically unusable.
	FailureApplication
	// FailureCapability means a required rendering capability is
	// missing from the environment.
	FailureCapability
)

func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case backend.IsNetworkError(err):
		return FailureNetwork
	case errors.Is(err, chart.ErrUnavailable):
		return FailureCapability
	default:
		return FailureApplication
	}
}
