package chart

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	axisStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	plotStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// TermEngine draws line charts as styled text blocks for a terminal
// dashboard.
type TermEngine struct{}

func NewTermEngine() *TermEngine {
	return &TermEngine{}
}

func (e *TermEngine) NewLineChart(series Series) (Handle, error) {
	if len(series.Values) == 0 {
		return nil, fmt.Errorf("empty series")
	}
	return &termChart{series: series}, nil
}

type termChart struct {
	series    Series
	mu        sync.Mutex
	destroyed bool
}

func (c *termChart) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
	c.series = Series{}
}

func (c *termChart) View(width, height int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ""
	}
	if width < 20 {
		width = 20
	}
	if height < 4 {
		height = 4
	}

	// Leave room for the y-axis gutter and the title/label rows.
	plotWidth := width - 10
	plotHeight := height - 2

	values := resample(c.series.Values, plotWidth)
	min, max := bounds(values)
	span := max - min
	if span == 0 {
		span = 1
	}

	grid := make([][]rune, plotHeight)
	for row := range grid {
		grid[row] = make([]rune, len(values))
		for col := range grid[row] {
			grid[row][col] = ' '
		}
	}
	for col, v := range values {
		row := int(math.Round((v - min) / span * float64(plotHeight-1)))
		grid[plotHeight-1-row][col] = '●'
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(c.series.Title))
	b.WriteByte('\n')
	for row := 0; row < plotHeight; row++ {
		gutter := "         "
		switch row {
		case 0:
			gutter = fmt.Sprintf("%8.2f ", max)
		case plotHeight - 1:
			gutter = fmt.Sprintf("%8.2f ", min)
		}
		b.WriteString(axisStyle.Render(gutter))
		b.WriteString(plotStyle.Render(string(grid[row])))
		b.WriteByte('\n')
	}
	b.WriteString(axisStyle.Render(xAxis(c.series.Labels, plotWidth+10)))
	return b.String()
}

// resample reduces (or keeps) the series to at most width points by
// averaging each bucket.
func resample(values []float64, width int) []float64 {
	if len(values) <= width {
		return values
	}
	out := make([]float64, width)
	for i := 0; i < width; i++ {
		lo := i * len(values) / width
		hi := (i + 1) * len(values) / width
		if hi <= lo {
			hi = lo + 1
		}
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

func bounds(values []float64) (float64, float64) {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func xAxis(labels []string, width int) string {
	if len(labels) == 0 {
		return ""
	}
	first := labels[0]
	last := labels[len(labels)-1]
	gap := width - len(first) - len(last)
	if gap < 1 {
		return first
	}
	return first + strings.Repeat(" ", gap) + last
}
