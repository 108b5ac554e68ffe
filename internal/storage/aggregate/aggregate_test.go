package aggregate

import (
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/tvar"
)

var t0 = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func TestStreamingAggregate_Basic(t *testing.T) {
	agg := New("v", 0, t0, t0.Add(5*time.Minute), 0)

	if !agg.IsEmpty() {
		t.Error("new aggregate should be empty")
	}

	agg.Add(10.0, t0)
	agg.Add(math.NaN(), t0.Add(time.Second))
	agg.Add(20.0, t0.Add(2*time.Second))
	agg.Add(30.0, t0.Add(3*time.Second))

	if agg.Count() != 3 {
		t.Errorf("expected count=3 (NaN ignored), got %d", agg.Count())
	}

	result := agg.Result()
	if result.Sum != 60.0 {
		t.Errorf("expected sum=60, got %f", result.Sum)
	}
	if result.Min != 10.0 || result.Max != 30.0 {
		t.Errorf("expected min=10 max=30, got %f %f", result.Min, result.Max)
	}
	if result.Mean != 20.0 {
		t.Errorf("expected mean=20, got %f", result.Mean)
	}
	if !result.First.Equal(t0) || !result.Last.Equal(t0.Add(3*time.Second)) {
		t.Errorf("unexpected first/last %v %v", result.First, result.Last)
	}
	if result.HasPercentiles() {
		t.Error("should not have percentiles")
	}
}

func TestStreamingAggregate_Empty(t *testing.T) {
	result := New("v", 0, t0, t0.Add(time.Minute), 0.01).Result()
	if !result.IsEmpty() || !math.IsNaN(result.Mean) || result.HasPercentiles() {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestStreamingAggregate_WithPercentiles(t *testing.T) {
	agg := New("v", 0, t0, t0.Add(5*time.Minute), 0.01)

	for i := 1; i <= 100; i++ {
		agg.Add(float64(i), t0.Add(time.Duration(i)*100*time.Millisecond))
	}

	result := agg.Result()
	if !result.HasPercentiles() {
		t.Fatal("should have percentiles")
	}
	if math.Abs(*result.P50-50.0) > 2.0 {
		t.Errorf("expected P50 near 50, got %f", *result.P50)
	}
	if math.Abs(*result.P95-95.0) > 2.0 {
		t.Errorf("expected P95 near 95, got %f", *result.P95)
	}
	if math.Abs(*result.P99-99.0) > 2.0 {
		t.Errorf("expected P99 near 99, got %f", *result.P99)
	}
}

func TestStreamingAggregate_Reset(t *testing.T) {
	end := t0.Add(5 * time.Minute)
	agg := New("v", 0, t0, end, 0.01)
	agg.Add(10.0, t0)
	agg.Add(20.0, t0.Add(time.Second))

	agg.Reset(end, end.Add(5*time.Minute))

	if !agg.IsEmpty() {
		t.Error("aggregate should be empty after reset")
	}
	if !agg.BucketStart().Equal(end) {
		t.Errorf("expected bucket start=%v, got %v", end, agg.BucketStart())
	}
	if agg.Result().HasPercentiles() {
		t.Error("sketch should be cleared after reset")
	}
}

func TestStreamingAggregate_Merge(t *testing.T) {
	end := t0.Add(5 * time.Minute)
	agg1 := New("v", 0, t0, end, 0)
	agg1.Add(10.0, t0)
	agg1.Add(20.0, t0.Add(time.Second))

	agg2 := New("v", 0, t0, end, 0)
	agg2.Add(30.0, t0.Add(2*time.Second))
	agg2.Add(40.0, t0.Add(3*time.Second))

	agg1.Merge(agg2)
	agg1.Merge(nil)
	agg1.Merge(agg1)

	result := agg1.Result()
	if result.Count != 4 {
		t.Errorf("expected count=4, got %d", result.Count)
	}
	if result.Sum != 100.0 {
		t.Errorf("expected sum=100, got %f", result.Sum)
	}
	if result.Min != 10.0 || result.Max != 40.0 {
		t.Errorf("expected min=10 max=40, got %f %f", result.Min, result.Max)
	}
}

func TestStreamingAggregate_Concurrent(t *testing.T) {
	agg := New("v", 0, t0, t0.Add(time.Hour), 0.01)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				agg.Add(float64(base*1000+j), t0.Add(time.Duration(j)*time.Millisecond))
			}
		}(g)
	}
	wg.Wait()

	if agg.Count() != 10000 {
		t.Errorf("expected count=10000, got %d", agg.Count())
	}
}

func testVar(t *testing.T) *tvar.Variable {
	t.Helper()
	times := make([]time.Time, 6)
	values := make([][]float64, 6)
	for i := range times {
		times[i] = t0.Add(time.Duration(i) * 10 * time.Second)
		values[i] = []float64{float64(i), float64(10 * i)}
	}
	v, err := tvar.New("v", tvar.Data{Times: times, Values: values})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestResample(t *testing.T) {
	v := testVar(t)

	out, err := Resample(v, 30*time.Second, nil)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if out.Len() != 2 || out.Cols() != 2 {
		t.Fatalf("expected 2x2 result, got %dx%d", out.Len(), out.Cols())
	}
	if got := out.Col(0); !reflect.DeepEqual(got, []float64{1, 4}) {
		t.Errorf("expected bucket means [1 4], got %v", got)
	}
	if !out.Times[1].Equal(t0.Add(30 * time.Second)) {
		t.Errorf("expected bucket start time, got %v", out.Times[1])
	}
	if out.Metadata["resample_width"] != "30s" {
		t.Errorf("expected width in metadata, got %v", out.Metadata)
	}

	stats, _ := ParseStats([]string{"min", "max"})
	out, err = Resample(v, 30*time.Second, stats)
	if err != nil {
		t.Fatal(err)
	}
	if out.Cols() != 4 {
		t.Fatalf("expected 4 traces, got %d", out.Cols())
	}
	if got := out.Row(0); !reflect.DeepEqual(got, []float64{0, 0, 2, 20}) {
		t.Errorf("expected [min0 min1 max0 max1] = [0 0 2 20], got %v", got)
	}
	if want := []string{"0 min", "1 min", "0 max", "1 max"}; !reflect.DeepEqual(out.Options.LegendNames, want) {
		t.Errorf("expected legends %v, got %v", want, out.Options.LegendNames)
	}

	if _, err := Resample(v, 0, nil); !errors.Is(err, errors.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
}

func TestParseStats(t *testing.T) {
	got, err := ParseStats([]string{"AVG", "p95"})
	if err != nil || !reflect.DeepEqual(got, []Stat{StatMean, StatP95}) {
		t.Errorf("unexpected stats %v %v", got, err)
	}
	if _, err := ParseStats([]string{"mode"}); !errors.Is(err, errors.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	results, err := Describe(testVar(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected one result per trace, got %d", len(results))
	}
	if results[1].Max != 50 || results[1].Count != 6 || !results[1].HasPercentiles() {
		t.Errorf("unexpected result %+v", results[1])
	}
}
