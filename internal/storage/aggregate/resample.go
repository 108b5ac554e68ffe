package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/xtxerr/tplot/config"
	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/tvar"
)

// Stat selects one statistic of a bucket.
type Stat string

const (
	StatMean  Stat = "mean"
	StatMin   Stat = "min"
	StatMax   Stat = "max"
	StatSum   Stat = "sum"
	StatCount Stat = "count"
	StatP50   Stat = "p50"
	StatP90   Stat = "p90"
	StatP95   Stat = "p95"
	StatP99   Stat = "p99"
)

// ParseStats converts a list of statistic names. An empty list selects
// the mean.
func ParseStats(names []string) ([]Stat, error) {
	if len(names) == 0 {
		return []Stat{StatMean}, nil
	}
	out := make([]Stat, 0, len(names))
	for _, n := range names {
		s := Stat(strings.ToLower(strings.TrimSpace(n)))
		switch s {
		case StatMean, StatMin, StatMax, StatSum, StatCount, StatP50, StatP90, StatP95, StatP99:
			out = append(out, s)
		case "avg", "average":
			out = append(out, StatMean)
		default:
			return nil, errors.NewInvalidOption("stat", n, "expected mean, min, max, sum, count, p50, p90, p95 or p99")
		}
	}
	return out, nil
}

func (s Stat) percentile() bool {
	return strings.HasPrefix(string(s), "p")
}

// Value extracts s from r. Missing values are NaN.
func (r Result) Value(s Stat) float64 {
	pick := func(p *float64) float64 {
		if p == nil {
			return math.NaN()
		}
		return *p
	}
	switch s {
	case StatMean:
		return r.Mean
	case StatMin:
		return r.Min
	case StatMax:
		return r.Max
	case StatSum:
		return r.Sum
	case StatCount:
		return float64(r.Count)
	case StatP50:
		return pick(r.P50)
	case StatP90:
		return pick(r.P90)
	case StatP95:
		return pick(r.P95)
	case StatP99:
		return pick(r.P99)
	}
	return math.NaN()
}

// Resampler groups the samples of one variable into fixed-width time
// buckets aligned to the Unix epoch, one aggregate per trace and bucket.
type Resampler struct {
	name     string
	width    time.Duration
	accuracy float64

	buckets map[int64][]*StreamingAggregate
}

// NewResampler creates a resampler for buckets of the given width.
// Percentiles are computed when accuracy is positive.
func NewResampler(name string, width time.Duration, accuracy float64) (*Resampler, error) {
	if width <= 0 {
		return nil, errors.NewInvalidOption("bucket", width, "must be positive")
	}
	return &Resampler{
		name:     name,
		width:    width,
		accuracy: accuracy,
		buckets:  make(map[int64][]*StreamingAggregate),
	}, nil
}

func (r *Resampler) bucket(t time.Time) (time.Time, time.Time) {
	start := t.Truncate(r.width)
	return start, start.Add(r.width)
}

// Add records one sample row taken at t.
func (r *Resampler) Add(t time.Time, row []float64) {
	start, end := r.bucket(t)
	key := start.UnixNano()
	aggs, ok := r.buckets[key]
	if !ok {
		aggs = make([]*StreamingAggregate, len(row))
		for j := range aggs {
			aggs[j] = New(r.name, j, start, end, r.accuracy)
		}
		r.buckets[key] = aggs
	}
	for j, x := range row {
		if j < len(aggs) {
			aggs[j].Add(x, t)
		}
	}
}

// Results returns the per-trace results of every bucket in time order.
func (r *Resampler) Results() [][]Result {
	keys := make([]int64, 0, len(r.buckets))
	for k := range r.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([][]Result, len(keys))
	for i, k := range keys {
		aggs := r.buckets[k]
		row := make([]Result, len(aggs))
		for j, a := range aggs {
			row[j] = a.Result()
		}
		out[i] = row
	}
	return out
}

// Resample aggregates v into buckets of the given width. The result has
// one trace per requested statistic and input trace, ordered by statistic
// first. Bucket times are the bucket starts.
func Resample(v *tvar.Variable, width time.Duration, stats []Stat) (*tvar.Variable, error) {
	if v.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "resample '%s'", v.Name)
	}
	if len(stats) == 0 {
		stats = []Stat{StatMean}
	}
	accuracy := 0.0
	for _, s := range stats {
		if s.percentile() {
			accuracy = config.DefaultSketchAccuracy
		}
	}

	rs, err := NewResampler(v.Name, width, accuracy)
	if err != nil {
		return nil, err
	}
	for i, t := range v.Times {
		rs.Add(t, v.Row(i))
	}
	results := rs.Results()

	cols := v.Cols()
	times := make([]time.Time, len(results))
	out := mat.NewDense(len(results), cols*len(stats), nil)
	for i, row := range results {
		times[i] = row[0].BucketStart
		for k, s := range stats {
			for j := range row {
				out.Set(i, k*cols+j, row[j].Value(s))
			}
		}
	}

	res := v.WithValues(times, out)
	res.Options.LegendNames = legendNames(v, stats)
	res.Metadata["resample_width"] = width.String()
	return res, nil
}

func legendNames(v *tvar.Variable, stats []Stat) []string {
	if len(stats) == 1 {
		return v.Options.LegendNames
	}
	var out []string
	for _, s := range stats {
		for j := 0; j < v.Cols(); j++ {
			if v.Cols() == 1 {
				out = append(out, string(s))
				continue
			}
			label, ok := v.Options.LegendAt(j)
			if !ok {
				label = fmt.Sprintf("%d", j)
			}
			out = append(out, label+" "+string(s))
		}
	}
	return out
}

// Describe summarizes every trace of v over its whole time range,
// percentiles included.
func Describe(v *tvar.Variable) ([]Result, error) {
	if v.IsPseudo() {
		return nil, errors.Wrapf(errors.ErrPseudoVariable, "describe '%s'", v.Name)
	}
	start, end, _ := v.Trange()
	out := make([]Result, v.Cols())
	for j := range out {
		a := New(v.Name, j, start, end, config.DefaultSketchAccuracy)
		for i, x := range v.Col(j) {
			a.Add(x, v.Times[i])
		}
		out[j] = a.Result()
	}
	return out, nil
}
