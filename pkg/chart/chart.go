package chart

import "github.com/pkg/errors"

// ErrUnavailable signals that no rendering capability exists in the
// current environment (for example, no usable terminal).
var ErrUnavailable = errors.New("chart renderer unavailable")

// Series is the data handed to the engine for a line chart: one value
// per point and a parallel axis label per point.
type Series struct {
	Title  string
	Labels []string
	Values []float64
}

// Handle is one live chart resource. At most one handle should be live
// at a time; callers destroy the previous handle before creating a new
// one so drawing resources never accumulate.
type Handle interface {
	// View renders the chart into a text block of roughly the given size.
	View(width, height int) string
	// Destroy releases the resource. The handle is unusable afterwards.
	Destroy()
}

// Engine abstracts the charting backend's drawing primitives.
type Engine interface {
	NewLineChart(series Series) (Handle, error)
}
