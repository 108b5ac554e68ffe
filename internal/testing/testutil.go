// Package testing provides helpers shared by the package tests: a
// goroutine runner that reports errors instead of calling t.Fatal off the
// test goroutine, and time-series fixtures.
package testing

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/tplot/internal/tvar"
)

// =============================================================================
// Goroutines
// =============================================================================

// GoroutineTest runs functions concurrently and fails the test with every
// error they returned. t.Fatal must not be called from the functions.
//
//	gt := testing.NewGoroutineTest(t)
//	for i := 0; i < 8; i++ {
//	    gt.Go(func() error { return reg.Store("v", d) })
//	}
//	gt.Wait()
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a GoroutineTest whose context is cancelled by
// Wait or after timeout, whichever comes first. A zero timeout means none.
func NewGoroutineTest(t *testing.T, timeout time.Duration) *GoroutineTest {
	gt := &GoroutineTest{t: t}
	if timeout > 0 {
		gt.ctx, gt.cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		gt.ctx, gt.cancel = context.WithCancel(context.Background())
	}
	return gt
}

// Go runs fn in a goroutine.
func (gt *GoroutineTest) Go(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			gt.mu.Lock()
			gt.errs = append(gt.errs, err)
			gt.mu.Unlock()
		}
	}()
}

// Wait waits for every goroutine and reports their errors.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()
	gt.wg.Wait()
	gt.cancel()

	if len(gt.errs) == 0 {
		return
	}
	gt.t.Errorf("%d goroutine(s) failed:", len(gt.errs))
	for i, err := range gt.errs {
		gt.t.Errorf("  [%d] %v", i+1, err)
	}
	gt.t.FailNow()
}

// =============================================================================
// Fixtures
// =============================================================================

// Epoch is the start time of the fixtures.
var Epoch = time.Date(2016, 11, 1, 0, 0, 0, 0, time.UTC)

// Times returns n times from Epoch, step apart.
func Times(n int, step time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = Epoch.Add(time.Duration(i) * step)
	}
	return out
}

// Ramp returns n one-minute samples of traces columns; sample i of trace j
// is i + 10*j.
func Ramp(n, traces int) tvar.Data {
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, traces)
		for j := range values[i] {
			values[i][j] = float64(i + 10*j)
		}
	}
	return tvar.Data{Times: Times(n, time.Minute), Values: values}
}

// Wave returns n one-minute samples of a sine and a cosine trace.
func Wave(n int) tvar.Data {
	values := make([][]float64, n)
	for i := range values {
		x := float64(i) / 5
		values[i] = []float64{math.Sin(x), math.Cos(x)}
	}
	return tvar.Data{Times: Times(n, time.Minute), Values: values}
}
