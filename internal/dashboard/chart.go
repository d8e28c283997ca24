package dashboard

import (
	"errors"
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/estatebook/estatebook/internal/view"
)

const (
	chartWidth   = 720
	chartHeight  = 240
	chartPadding = 36.0
	chartTicks   = 4

	billedColor    = "#94a3b8"
	collectedColor = "#0ea5e9"
	axisColor      = "#475569"
	gridColor      = "#cbd5f5"
)

// TrendChart renders billed against collected per month as grouped bars.
func TrendChart(points []MonthPoint) (template.HTML, error) {
	if len(points) == 0 {
		return "", errors.New("dashboard: chart needs at least one month")
	}
	plotW := chartWidth - 2*chartPadding
	plotH := chartHeight - 2*chartPadding

	top := 0.0
	for _, p := range points {
		top = math.Max(top, math.Max(p.Billed, p.Collected))
	}
	if top <= 0 {
		top = 1
	}
	top = niceCeil(top)
	scale := plotH / top
	bottom := chartPadding + plotH

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img" aria-labelledby="trend-title">`, chartWidth, chartHeight)
	b.WriteString(`<title id="trend-title">Billed and collected per month</title>`)

	for i := 0; i <= chartTicks; i++ {
		value := top * float64(i) / chartTicks
		y := bottom - value*scale
		fmt.Fprintf(&b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="0.5" stroke-dasharray="2,4"></line>`,
			chartPadding, y, chartPadding+plotW, y, gridColor)
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="end">%s</text>`,
			chartPadding-6, y+4, axisColor, template.HTMLEscapeString(shortMoney(value)))
	}
	fmt.Fprintf(&b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s"></line>`,
		chartPadding, bottom, chartPadding+plotW, bottom, axisColor)

	group := plotW / float64(len(points))
	bar := group / 3
	for i, p := range points {
		x := chartPadding + float64(i)*group
		label := p.Month.Format("Jan 06")
		writeBar(&b, x+bar*0.4, bottom, bar, p.Billed*scale, billedColor, "Billed "+label+": "+view.FormatMoney(p.Billed))
		writeBar(&b, x+bar*1.5, bottom, bar, p.Collected*scale, collectedColor, "Collected "+label+": "+view.FormatMoney(p.Collected))
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="middle">%s</text>`,
			x+group/2, bottom+14, axisColor, template.HTMLEscapeString(label))
	}

	legendY := chartPadding - 16
	for i, item := range []struct{ label, color string }{{"Billed", billedColor}, {"Collected", collectedColor}} {
		x := chartPadding + float64(i)*90
		fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="10" height="10" fill="%s"></rect>`, x, legendY-8, item.color)
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10">%s</text>`, x+14, legendY+1, axisColor, item.label)
	}
	b.WriteString(`</svg>`)
	return template.HTML(b.String()), nil
}

func writeBar(b *strings.Builder, x, bottom, width, height float64, color, label string) {
	if height < 0 {
		height = 0
	}
	fmt.Fprintf(b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s"><title>%s</title></rect>`,
		x, bottom-height, width, height, color, template.HTMLEscapeString(label))
}

// niceCeil rounds v up to 1, 2 or 5 times a power of ten.
func niceCeil(v float64) float64 {
	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 5, 10} {
		if v <= m*exp {
			return m * exp
		}
	}
	return 10 * exp
}

func shortMoney(v float64) string {
	switch {
	case v >= 1e9:
		return trimZero(v/1e9) + "B"
	case v >= 1e6:
		return trimZero(v/1e6) + "M"
	case v >= 1e3:
		return trimZero(v/1e3) + "K"
	default:
		return trimZero(v)
	}
}

func trimZero(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}
