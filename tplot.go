// Package tplot stores named time series and plots them with gonum/plot.
//
// A Workspace maps names to variables. Store adds or replaces a variable,
// Get reads its data back and Plot draws one or more variables as stacked
// panels sharing a time axis:
//
//	ws := tplot.New()
//	_ = ws.StoreSeries("density", times, values)
//	_, _ = ws.Plot(ctx, []string{"density"}, "density.png")
//
// The package-level functions work on a process-wide default workspace.
package tplot

import (
	"context"
	"time"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/registry"
	"github.com/xtxerr/tplot/internal/render"
	"github.com/xtxerr/tplot/internal/storage/parquet"
	"github.com/xtxerr/tplot/internal/tmath"
	"github.com/xtxerr/tplot/internal/tvar"
)

// Data is the content of a variable: one row of Values per time, one
// column per trace.
type Data = tvar.Data

// PlotRequest selects where and how large a figure is written.
type PlotRequest = render.Request

// Op is an element-wise operation on two variables.
type Op = tmath.Op

// Element-wise operations for Arith.
const (
	OpAdd      = tmath.OpAdd
	OpSubtract = tmath.OpSubtract
	OpMultiply = tmath.OpMultiply
	OpDivide   = tmath.OpDivide
)

// Workspace holds named variables and the figure options that apply to
// them. It is safe for concurrent use.
type Workspace struct {
	reg    *registry.Registry
	render *render.Renderer
	math   *tmath.Math
}

// New returns an empty workspace.
func New() *Workspace {
	reg := registry.New()
	return &Workspace{reg: reg, render: render.New(reg), math: tmath.New(reg)}
}

// Store creates or replaces the variable name. The number of times must
// equal the number of value rows.
func (w *Workspace) Store(name string, d Data) error {
	return w.reg.Store(name, d)
}

// StoreSeries stores one trace per ys slice, all sampled at times.
func (w *Workspace) StoreSeries(name string, times []time.Time, ys ...[]float64) error {
	values := make([][]float64, len(times))
	for i := range values {
		values[i] = make([]float64, len(ys))
	}
	for j, y := range ys {
		if len(y) != len(times) {
			return errors.Wrapf(errors.NewLengthMismatch("values", len(times), len(y)), "trace %d", j)
		}
		for i, v := range y {
			values[i][j] = v
		}
	}
	return w.reg.Store(name, Data{Times: times, Values: values})
}

// StorePseudo stores a variable that overplots the named variables.
func (w *Workspace) StorePseudo(name string, components ...string) error {
	return w.reg.StorePseudo(name, components...)
}

// Get returns a copy of the data of name.
func (w *Workspace) Get(name string) (Data, error) {
	return w.reg.Get(name)
}

// Plot draws names and writes the figure to each output path. A path
// without extension gets .png. The written paths are returned.
func (w *Workspace) Plot(ctx context.Context, names []string, outputs ...string) ([]string, error) {
	return w.render.Plot(ctx, names, PlotRequest{Outputs: outputs})
}

// PlotWith draws names as described by req.
func (w *Workspace) PlotWith(ctx context.Context, names []string, req PlotRequest) ([]string, error) {
	return w.render.Plot(ctx, names, req)
}

// SetOptions applies plot options such as ylog, yrange or color to the
// named variables.
func (w *Workspace) SetOptions(names []string, values map[string]interface{}) error {
	return w.reg.SetOptions(names, values)
}

// SetGlobals applies figure options such as title or window_size.
func (w *Workspace) SetGlobals(values map[string]interface{}) error {
	return w.reg.SetGlobals(values)
}

// Names returns the stored names matching the glob patterns, or all names.
func (w *Workspace) Names(patterns ...string) []string {
	return w.reg.Names(patterns...)
}

// Delete removes the variables matching patterns, or every variable.
func (w *Workspace) Delete(patterns ...string) []string {
	return w.reg.Delete(patterns...)
}

// Arith stores op(name1, name2) as newName, interpolating name2 onto the
// times of name1. It returns the stored name.
func (w *Workspace) Arith(op Op, name1, name2, newName string) (string, error) {
	return w.math.Arith(op, name1, name2, newName)
}

// Save writes the workspace to a session directory.
func (w *Workspace) Save(dir string) error {
	_, err := parquet.Open(dir, parquet.DefaultOptions()).Save(w.reg)
	return err
}

// Load replaces the workspace contents with the session saved in dir.
func (w *Workspace) Load(dir string) error {
	_, err := parquet.Open(dir, parquet.DefaultOptions()).Load(w.reg)
	return err
}

// =============================================================================
// Default workspace
// =============================================================================

var std = New()

// Default returns the process-wide workspace used by the package-level
// functions.
func Default() *Workspace { return std }

// Store stores name in the default workspace.
func Store(name string, d Data) error { return std.Store(name, d) }

// Get reads name from the default workspace.
func Get(name string) (Data, error) { return std.Get(name) }

// Plot draws variables of the default workspace.
func Plot(ctx context.Context, names []string, outputs ...string) ([]string, error) {
	return std.Plot(ctx, names, outputs...)
}
