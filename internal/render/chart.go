package render

import (
	"fmt"
	"io"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/pipeline"
)

// Format is an image encoding for chart feeds.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

const (
	chartWidth  = 1024
	chartHeight = 512
	barWidth    = 40
)

// ParseFormat accepts a file extension without the dot.
func ParseFormat(ext string) (Format, error) {
	switch Format(ext) {
	case FormatPNG, FormatSVG:
		return Format(ext), nil
	default:
		return "", fmt.Errorf("%w: unsupported chart format %q", domain.ErrInvalidSelection, ext)
	}
}

// ContentType is the HTTP media type of f.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) renderer() chart.RendererProvider {
	if f == FormatSVG {
		return chart.SVG
	}
	return chart.PNG
}

// Bar is one labelled value of a bar chart.
type Bar struct {
	Label string
	Value float64
}

// Segment is one series' contribution to a stacked bar. An empty Label
// defaults to the series name and value.
type Segment struct {
	Bar    string
	Series string
	Value  float64
	Label  string
}

func background() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}}
}

// barRange spans zero and every value. go-chart rejects a zero-height range,
// so a flat series gets a unit span.
func barRange(bars []Bar) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, b := range bars {
		lo = min(lo, b.Value)
		hi = max(hi, b.Value)
	}
	if hi == lo {
		hi = lo + 1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

// BarChart draws bars in the given order. Values are labelled on the y axis
// with places decimals.
func BarChart(w io.Writer, f Format, title string, bars []Bar, places int) error {
	if len(bars) == 0 {
		return fmt.Errorf("chart %q: no bars to draw: %w", title, domain.ErrNotFound)
	}
	values := make([]chart.Value, len(bars))
	for i, b := range bars {
		values[i] = chart.Value{Label: b.Label, Value: b.Value}
	}
	bc := chart.BarChart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		BarWidth:   barWidth,
		Background: background(),
		YAxis: chart.YAxis{
			Range:          barRange(bars),
			ValueFormatter: axisFormatter(places),
		},
		Bars: values,
	}
	if err := bc.Render(f.renderer(), w); err != nil {
		return fmt.Errorf("render chart %q: %w", title, err)
	}
	return nil
}

// StackedChart draws one bar per distinct Segment.Bar in first-appearance
// order. go-chart stacks each bar as shares of its total, so segment labels
// carry the absolute value. Series keep one colour across bars, and bars with
// no positive value are left out.
func StackedChart(w io.Writer, f Format, title string, segs []Segment, places int) error {
	colors := make(map[string]drawing.Color)
	index := make(map[string]int)
	var stacks []chart.StackedBar

	for _, s := range segs {
		if s.Value <= 0 {
			continue
		}
		c, ok := colors[s.Series]
		if !ok {
			c = chart.GetDefaultColor(len(colors))
			colors[s.Series] = c
		}
		i, ok := index[s.Bar]
		if !ok {
			i = len(stacks)
			index[s.Bar] = i
			stacks = append(stacks, chart.StackedBar{Name: s.Bar})
		}
		label := s.Label
		if label == "" {
			label = s.Series + " " + Number(s.Value, places)
		}
		stacks[i].Values = append(stacks[i].Values, chart.Value{
			Label: label,
			Value: s.Value,
			Style: chart.Style{FillColor: c, StrokeColor: c},
		})
	}
	if len(stacks) == 0 {
		return fmt.Errorf("chart %q: no bars to draw: %w", title, domain.ErrNotFound)
	}

	sbc := chart.StackedBarChart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: background(),
		Bars:       stacks,
	}
	if err := sbc.Render(f.renderer(), w); err != nil {
		return fmt.Errorf("render chart %q: %w", title, err)
	}
	return nil
}

// LossChart draws loss_abs per zone for one metric as absolute bars. An
// empty metric picks the first metric with a value. With shares set, each
// zone is instead one stacked bar split by metric and labelled with each
// metric's percentage of the zone total.
func LossChart(w io.Writer, f Format, level, metric string, shares bool, bars []pipeline.LossBar) error {
	if shares {
		return lossShares(w, f, level, bars)
	}
	if metric == "" {
		for _, b := range bars {
			if _, ok := b.LossAbs.Float(); ok {
				metric = b.Metric
				break
			}
		}
	}
	var plain []Bar
	for _, b := range bars {
		if v, ok := b.LossAbs.Float(); ok && b.Metric == metric {
			plain = append(plain, Bar{Label: b.ZoneID, Value: v})
		}
	}
	return BarChart(w, f, fmt.Sprintf("%s loss by %s", metric, level), plain, 0)
}

func lossShares(w io.Writer, f Format, level string, bars []pipeline.LossBar) error {
	totals := make(map[string]float64)
	for _, b := range bars {
		if v, ok := b.LossAbs.Float(); ok && v > 0 {
			totals[b.ZoneID] += v
		}
	}
	segs := make([]Segment, 0, len(bars))
	for _, b := range bars {
		v, ok := b.LossAbs.Float()
		if !ok || v <= 0 {
			continue
		}
		segs = append(segs, Segment{
			Bar:    b.ZoneID,
			Series: b.Metric,
			Value:  v,
			Label:  b.Metric + " " + Percent(v/totals[b.ZoneID]),
		})
	}
	return StackedChart(w, f, "Loss share by "+level, segs, 0)
}

// IndexChart draws an index panel's kebele scores, highest first.
func IndexChart(w io.Writer, f Format, panel *pipeline.IndexPanel) error {
	bars := make([]Bar, 0, len(panel.Bars))
	for _, s := range panel.Bars {
		if v, ok := s.Score.Float(); ok {
			bars = append(bars, Bar{Label: s.Kebele, Value: v})
		}
	}
	return BarChart(w, f, panel.Title, bars, 2)
}
