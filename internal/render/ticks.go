package render

import (
	"math"
	"strconv"

	"gonum.org/v1/plot"
)

// unlabeled keeps the tick positions of a ticker but drops the labels. It
// is used on the time axis of every panel except the bottom one.
type unlabeled struct {
	plot.Ticker
}

func (u unlabeled) Ticks(min, max float64) []plot.Tick {
	ticks := u.Ticker.Ticks(min, max)
	for i := range ticks {
		ticks[i].Label = ""
	}
	return ticks
}

// majorTicks places labeled ticks at fixed values.
func majorTicks(values []float64) plot.ConstantTicks {
	ticks := make(plot.ConstantTicks, len(values))
	for i, v := range values {
		ticks[i] = plot.Tick{Value: v, Label: strconv.FormatFloat(v, 'g', -1, 64)}
	}
	return ticks
}

// maxMinorTicks bounds the number of minor ticks per axis.
const maxMinorTicks = 500

// withMinor adds unlabeled ticks every interval to the ticks of a major
// ticker.
type withMinor struct {
	major    plot.Ticker
	interval float64
}

func (w withMinor) Ticks(min, max float64) []plot.Tick {
	ticks := w.major.Ticks(min, max)
	if w.interval <= 0 || (max-min)/w.interval > maxMinorTicks {
		return ticks
	}
	major := make(map[float64]bool, len(ticks))
	for _, t := range ticks {
		if t.Label != "" {
			major[t.Value] = true
		}
	}
	for v := math.Ceil(min/w.interval) * w.interval; v <= max; v += w.interval {
		if !major[v] {
			ticks = append(ticks, plot.Tick{Value: v})
		}
	}
	return ticks
}
