// Package aggregate summarizes the traces of a variable: whole-range
// statistics and time-bucketed resampling, with optional percentiles from
// a DDSketch.
package aggregate

import (
	"math"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/tplot/config"
)

// Result is the summary of one trace over one time bucket.
type Result struct {
	Name  string
	Trace int

	BucketStart time.Time
	BucketEnd   time.Time

	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64

	// Percentiles, nil when not enabled
	P50 *float64
	P90 *float64
	P95 *float64
	P99 *float64

	First time.Time
	Last  time.Time
}

// HasPercentiles reports whether percentile data is available.
func (r Result) HasPercentiles() bool {
	return r.P50 != nil
}

// IsEmpty reports whether no samples were aggregated.
func (r Result) IsEmpty() bool {
	return r.Count == 0
}

// Duration returns the bucket width.
func (r Result) Duration() time.Duration {
	return r.BucketEnd.Sub(r.BucketStart)
}

// StreamingAggregate maintains running statistics for one trace in one
// time bucket. NaN values are ignored.
type StreamingAggregate struct {
	mu sync.Mutex

	name  string
	trace int

	bucketStart time.Time
	bucketEnd   time.Time

	count int64
	sum   float64
	min   float64
	max   float64
	first time.Time
	last  time.Time

	accuracy float64
	sketch   *ddsketch.DDSketch
}

// New creates an aggregate for the given bucket. accuracy is the relative
// accuracy of the percentile sketch; zero disables percentiles.
func New(name string, trace int, bucketStart, bucketEnd time.Time, accuracy float64) *StreamingAggregate {
	a := &StreamingAggregate{
		name:        name,
		trace:       trace,
		bucketStart: bucketStart,
		bucketEnd:   bucketEnd,
		min:         math.MaxFloat64,
		max:         -math.MaxFloat64,
		accuracy:    accuracy,
	}
	a.sketch = newSketch(accuracy)
	return a
}

func newSketch(accuracy float64) *ddsketch.DDSketch {
	if accuracy <= 0 {
		return nil
	}
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		sketch, _ = ddsketch.NewDefaultDDSketch(config.DefaultSketchAccuracy)
	}
	return sketch
}

// Add adds a value sampled at t.
func (a *StreamingAggregate) Add(value float64, t time.Time) {
	if math.IsNaN(value) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.sum += value
	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}
	if a.first.IsZero() || t.Before(a.first) {
		a.first = t
	}
	if t.After(a.last) {
		a.last = t
	}

	// the sketch only accepts finite values
	if a.sketch != nil && !math.IsInf(value, 0) {
		_ = a.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (a *StreamingAggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// IsEmpty reports whether no values have been added.
func (a *StreamingAggregate) IsEmpty() bool {
	return a.Count() == 0
}

// Result returns the current statistics.
func (a *StreamingAggregate) Result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := Result{
		Name:        a.name,
		Trace:       a.trace,
		BucketStart: a.bucketStart,
		BucketEnd:   a.bucketEnd,
		Count:       a.count,
		Sum:         a.sum,
		First:       a.first,
		Last:        a.last,
		Min:         math.NaN(),
		Max:         math.NaN(),
		Mean:        math.NaN(),
	}
	if a.count > 0 {
		r.Mean = a.sum / float64(a.count)
		r.Min = a.min
		r.Max = a.max
	}

	if a.sketch != nil && !a.sketch.IsEmpty() {
		r.P50 = quantile(a.sketch, 0.50)
		r.P90 = quantile(a.sketch, 0.90)
		r.P95 = quantile(a.sketch, 0.95)
		r.P99 = quantile(a.sketch, 0.99)
	}
	return r
}

func quantile(s *ddsketch.DDSketch, q float64) *float64 {
	v, err := s.GetValueAtQuantile(q)
	if err != nil {
		return nil
	}
	return &v
}

// Reset empties the aggregate and moves it to a new bucket.
func (a *StreamingAggregate) Reset(bucketStart, bucketEnd time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bucketStart = bucketStart
	a.bucketEnd = bucketEnd
	a.count = 0
	a.sum = 0
	a.min = math.MaxFloat64
	a.max = -math.MaxFloat64
	a.first = time.Time{}
	a.last = time.Time{}
	a.sketch = newSketch(a.accuracy)
}

// Merge folds other into a. Both must cover the same bucket.
func (a *StreamingAggregate) Merge(other *StreamingAggregate) {
	if other == nil || other == a {
		return
	}
	a.mu.Lock()
	other.mu.Lock()
	defer a.mu.Unlock()
	defer other.mu.Unlock()

	if other.count == 0 {
		return
	}
	a.count += other.count
	a.sum += other.sum
	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}
	if a.first.IsZero() || (!other.first.IsZero() && other.first.Before(a.first)) {
		a.first = other.first
	}
	if other.last.After(a.last) {
		a.last = other.last
	}
	if a.sketch != nil && other.sketch != nil {
		_ = a.sketch.MergeWith(other.sketch)
	}
}

// BucketStart returns the start of the bucket.
func (a *StreamingAggregate) BucketStart() time.Time {
	return a.bucketStart
}

// BucketEnd returns the end of the bucket.
func (a *StreamingAggregate) BucketEnd() time.Time {
	return a.bucketEnd
}
