// Package charts renders the dashboard figures as PNG images.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"speza/internal/core"
)

// ErrNoData is returned when a chart would have nothing to draw.
var ErrNoData = errors.New("no data to chart")

// Palette is cycled over the expense categories.
var Palette = []drawing.Color{
	drawing.ColorFromHex("00C896"),
	drawing.ColorFromHex("1E90FF"),
	drawing.ColorFromHex("FFB84D"),
	drawing.ColorFromHex("9B5DE5"),
	drawing.ColorFromHex("FF6B6B"),
}

const (
	width  = 800
	height = 480
)

var background = chart.Style{
	Padding: chart.Box{
		Top:    40,
		Left:   20,
		Right:  20,
		Bottom: 20,
	},
	FillColor: chart.ColorWhite,
}

// ExpensePie draws the expense breakdown by category. Categories whose
// total is not positive cannot be drawn as a slice and are left out.
func ExpensePie(r core.Report) ([]byte, error) {
	values := make([]chart.Value, 0, len(r.Categories))
	for _, c := range r.Categories {
		if !(c.Amount > 0) || math.IsInf(c.Amount, 0) {
			continue
		}
		color := Palette[len(values)%len(Palette)]
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %s", c.Name, core.FormatAmount(c.Amount)),
			Value: c.Amount,
			Style: chart.Style{
				FillColor:   color,
				StrokeColor: chart.ColorWhite,
				StrokeWidth: 2,
				FontSize:    11,
				FontColor:   chart.ColorBlack,
			},
		})
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	pie := chart.PieChart{
		Title:      "Expense Breakdown",
		Width:      width,
		Height:     height,
		Values:     values,
		Background: background,
	}

	buf := bytes.NewBuffer(nil)
	if err := pie.Render(chart.PNG, buf); err != nil {
		return nil, fmt.Errorf("render expense pie: %w", err)
	}
	return buf.Bytes(), nil
}

// MonthlyTrend draws income and expense per month on a time axis.
func MonthlyTrend(r core.Report) ([]byte, error) {
	series := r.ChronologicalSeries()
	if len(series) == 0 {
		return nil, ErrNoData
	}

	xs := make([]time.Time, len(series))
	income := make([]float64, len(series))
	expense := make([]float64, len(series))
	for i, p := range series {
		xs[i] = p.Start
		income[i] = finite(p.Income)
		expense[i] = finite(p.Expense)
	}

	graph := chart.Chart{
		Title:      "Monthly Income vs Expense",
		Width:      width,
		Height:     height,
		Background: background,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat(core.MonthLabelLayout),
			Range:          xRange(xs),
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
			Range: yRange(income, expense),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Income",
				XValues: xs,
				YValues: income,
				Style: chart.Style{
					StrokeColor: Palette[0],
					StrokeWidth: 2,
					DotColor:    Palette[0],
					DotWidth:    3,
				},
			},
			chart.TimeSeries{
				Name:    "Expense",
				XValues: xs,
				YValues: expense,
				Style: chart.Style{
					StrokeColor: Palette[4],
					StrokeWidth: 2,
					DotColor:    Palette[4],
					DotWidth:    3,
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	buf := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buf); err != nil {
		return nil, fmt.Errorf("render monthly trend: %w", err)
	}
	return buf.Bytes(), nil
}

// xRange spans the months shown, padded by half a month on each side so
// a single month still has a non-zero extent.
func xRange(xs []time.Time) *chart.ContinuousRange {
	pad := 15 * 24 * time.Hour
	return &chart.ContinuousRange{
		Min: chart.TimeToFloat64(xs[0].Add(-pad)),
		Max: chart.TimeToFloat64(xs[len(xs)-1].Add(pad)),
	}
}

// yRange always includes zero and never collapses to a single value.
func yRange(sets ...[]float64) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, set := range sets {
		for _, v := range set {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi-lo < 1 {
		hi = lo + 1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi * 1.1}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
