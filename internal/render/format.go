package render

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Number formats f with thousands separators and a fixed number of decimal
// places. NaN and infinities render as "–".
func Number(f float64, places int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "–"
	}
	return printer.Sprintf(fmt.Sprintf("%%.%df", max(places, 0)), f)
}

// Percent formats a 0..1 share as a percentage with one decimal place.
func Percent(share float64) string {
	if math.IsNaN(share) || math.IsInf(share, 0) {
		return "–"
	}
	return printer.Sprintf("%.1f%%", share*100)
}

// axisFormatter adapts Number to go-chart's tick formatter.
func axisFormatter(places int) func(v any) string {
	return func(v any) string {
		if f, ok := v.(float64); ok {
			return Number(f, places)
		}
		return ""
	}
}
