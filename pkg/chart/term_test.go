package chart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeries() Series {
	return Series{
		Title:  "AAPL close",
		Labels: []string{"2024-01-02 09:30", "2024-01-03 09:30", "2024-01-04 09:30"},
		Values: []float64{187.15, 185.64, 186.20},
	}
}

func TestTermEngine(t *testing.T) {
	engine := NewTermEngine()

	t.Run("renders title and bounds", func(t *testing.T) {
		handle, err := engine.NewLineChart(testSeries())
		require.NoError(t, err)
		defer handle.Destroy()

		out := handle.View(60, 12)
		assert.Contains(t, out, "AAPL close")
		assert.Contains(t, out, "187.15")
		assert.Contains(t, out, "185.64")
		assert.Contains(t, out, "●")
	})

	t.Run("renders first and last labels", func(t *testing.T) {
		handle, err := engine.NewLineChart(testSeries())
		require.NoError(t, err)
		defer handle.Destroy()

		out := handle.View(80, 12)
		assert.Contains(t, out, "2024-01-02 09:30")
		assert.Contains(t, out, "2024-01-04 09:30")
	})

	t.Run("empty series is rejected", func(t *testing.T) {
		_, err := engine.NewLineChart(Series{Title: "empty"})
		assert.Error(t, err)
	})

	t.Run("destroyed handle renders nothing", func(t *testing.T) {
		handle, err := engine.NewLineChart(testSeries())
		require.NoError(t, err)

		handle.Destroy()
		assert.Equal(t, "", handle.View(60, 12))
	})

	t.Run("flat series does not divide by zero", func(t *testing.T) {
		handle, err := engine.NewLineChart(Series{
			Title:  "flat",
			Labels: []string{"a", "b"},
			Values: []float64{100, 100},
		})
		require.NoError(t, err)
		defer handle.Destroy()

		assert.NotPanics(t, func() { handle.View(40, 8) })
	})

	t.Run("tiny dimensions are clamped", func(t *testing.T) {
		handle, err := engine.NewLineChart(testSeries())
		require.NoError(t, err)
		defer handle.Destroy()

		out := handle.View(1, 1)
		assert.NotEmpty(t, out)
	})
}

func TestResample(t *testing.T) {
	t.Run("short series passes through", func(t *testing.T) {
		values := []float64{1, 2, 3}
		assert.Equal(t, values, resample(values, 10))
	})

	t.Run("long series reduces to width", func(t *testing.T) {
		values := make([]float64, 100)
		for i := range values {
			values[i] = float64(i)
		}
		out := resample(values, 10)
		require.Len(t, out, 10)
		// Bucket averages stay ordered for a monotonic input.
		for i := 1; i < len(out); i++ {
			assert.Greater(t, out[i], out[i-1])
		}
	})
}

func TestXAxis(t *testing.T) {
	t.Run("spreads first and last labels", func(t *testing.T) {
		out := xAxis([]string{"start", "mid", "end"}, 20)
		assert.True(t, strings.HasPrefix(out, "start"))
		assert.True(t, strings.HasSuffix(out, "end"))
		assert.Len(t, out, 20)
	})

	t.Run("narrow width keeps only the first", func(t *testing.T) {
		assert.Equal(t, "start", xAxis([]string{"start", "end"}, 6))
	})

	t.Run("no labels renders empty", func(t *testing.T) {
		assert.Equal(t, "", xAxis(nil, 20))
	})
}
