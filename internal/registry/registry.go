// Package registry provides the in-memory name-to-variable store.
//
// The registry owns every variable of a session together with the
// figure-wide plot options. Entries keep their insertion order; replacing
// a variable under an existing name keeps its position.
package registry

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/logging"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/tvar"
	"github.com/xtxerr/tplot/internal/validation"
)

var log = logging.Component("registry")

// =============================================================================
// Registry
// =============================================================================

// Registry maps variable names to variables.
//
// Registry is safe for concurrent use. Every method returns copies; callers
// never hold references into the registry's state.
type Registry struct {
	mu     sync.RWMutex
	vars   map[string]*tvar.Variable
	order  []string
	global options.Global
}

// New creates an empty registry with default figure options.
func New() *Registry {
	return &Registry{
		vars:   make(map[string]*tvar.Variable),
		global: options.DefaultGlobal(),
	}
}

// Len returns the number of variables.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// put inserts or replaces v. Callers must hold r.mu.
func (r *Registry) put(v *tvar.Variable) {
	if _, exists := r.vars[v.Name]; !exists {
		r.order = append(r.order, v.Name)
	}
	r.vars[v.Name] = v
}

// remove deletes name. Callers must hold r.mu.
func (r *Registry) remove(name string) {
	delete(r.vars, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) lookup(name string) (*tvar.Variable, error) {
	v, ok := r.vars[validation.NormalizeName(name)]
	if !ok {
		return nil, errors.NewVariableNotFound(name)
	}
	return v, nil
}

func checkName(name string) (string, error) {
	name = validation.NormalizeName(name)
	if err := validation.ValidateVariableName(name); err != nil {
		return "", errors.Wrapf(err, "variable name %q", name)
	}
	return name, nil
}

// =============================================================================
// Store / Get
// =============================================================================

// Store creates or replaces the variable name from d. The last write wins.
func (r *Registry) Store(name string, d tvar.Data) error {
	name, err := checkName(name)
	if err != nil {
		return err
	}
	v, err := tvar.New(name, d)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.put(v)
	r.mu.Unlock()

	log.Debug("variable stored", "name", name, "samples", v.Len(), "traces", v.Cols())
	return nil
}

// Put inserts a fully built variable, replacing any variable of the same
// name. The registry keeps a copy.
func (r *Registry) Put(v *tvar.Variable) error {
	name, err := checkName(v.Name)
	if err != nil {
		return err
	}
	if !v.IsPseudo() && !v.HasData() {
		return errors.Wrapf(errors.ErrEmptyData, "variable '%s'", name)
	}
	c := v.Clone()
	c.Name = name

	r.mu.Lock()
	r.put(c)
	r.mu.Unlock()
	return nil
}

// StorePseudo creates an overplot of other variables. Each component may
// itself hold several space-separated names; pseudo-variables among the
// components are expanded to their base variables. Missing components are
// skipped with a warning.
func (r *Registry) StorePseudo(name string, components ...string) error {
	name, err := checkName(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var base []string
	for _, c := range components {
		for _, f := range strings.Fields(c) {
			base = append(base, r.expand(validation.NormalizeName(f), 0)...)
		}
	}
	if len(base) == 0 {
		return fmt.Errorf("none of the components of '%s' exist: %w", name, errors.ErrVariableNotFound)
	}
	for _, b := range base {
		if b == name {
			return fmt.Errorf("pseudo-variable '%s' cannot overplot itself: %w", name, errors.ErrInvalidName)
		}
	}

	r.put(tvar.NewPseudo(name, r.vars[base[0]], base))
	log.Debug("pseudo-variable stored", "name", name, "components", base)
	return nil
}

// expand resolves name to base variable names. Callers must hold r.mu.
func (r *Registry) expand(name string, depth int) []string {
	v, ok := r.vars[name]
	if !ok {
		log.Warn("pseudo-variable component does not exist", "name", name)
		return nil
	}
	if !v.IsPseudo() {
		return []string{name}
	}
	if depth > len(r.order) {
		return nil
	}
	var out []string
	for _, c := range v.Components {
		out = append(out, r.expand(c, depth+1)...)
	}
	return out
}

// Get returns a copy of the arrays of name.
func (r *Registry) Get(name string) (tvar.Data, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, err := r.lookup(name)
	if err != nil {
		return tvar.Data{}, err
	}
	if v.IsPseudo() {
		return tvar.Data{}, errors.Wrapf(errors.ErrPseudoVariable, "'%s' overplots %s", name, strings.Join(v.Components, ", "))
	}
	return v.Data(), nil
}

// Variable returns a deep copy of name, options and metadata included.
func (r *Registry) Variable(name string) (*tvar.Variable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return v.Clone(), nil
}

// Components returns copies of the base variables that name draws: the
// variable itself, or the components of a pseudo-variable. Components that
// no longer exist are skipped with a warning.
func (r *Registry) Components(name string) ([]*tvar.Variable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if !v.IsPseudo() {
		return []*tvar.Variable{v.Clone()}, nil
	}

	var out []*tvar.Variable
	for _, c := range v.Components {
		base, ok := r.vars[c]
		if !ok || base.IsPseudo() {
			log.Warn("skipping missing overplot component", "variable", name, "component", c)
			continue
		}
		out = append(out, base.Clone())
	}
	return out, nil
}

// Variables returns copies of all variables in insertion order.
func (r *Registry) Variables() []*tvar.Variable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*tvar.Variable, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.vars[n].Clone())
	}
	return out
}

// Restore replaces the registry contents with vars and g.
func (r *Registry) Restore(vars []*tvar.Variable, g options.Global) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vars = make(map[string]*tvar.Variable, len(vars))
	r.order = r.order[:0]
	for _, v := range vars {
		r.put(v.Clone())
	}
	r.global = g.Clone()
}

// =============================================================================
// Delete / Rename / Copy
// =============================================================================

// Delete removes variables by name or glob pattern and returns the removed
// names. Without arguments every variable is removed. Unknown names are
// ignored.
func (r *Registry) Delete(patterns ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(patterns) == 0 {
		deleted := append([]string(nil), r.order...)
		r.vars = make(map[string]*tvar.Variable)
		r.order = nil
		return deleted
	}

	var deleted []string
	for _, p := range patterns {
		for _, name := range r.match(p) {
			r.remove(name)
			deleted = append(deleted, name)
		}
	}
	return deleted
}

// Rename changes the name of a variable, keeping its position. A variable
// already holding newName is replaced. Pseudo-variables that overplot the
// old name follow the rename.
func (r *Registry) Rename(oldName, newName string) error {
	newName, err := checkName(newName)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.lookup(oldName)
	if err != nil {
		return err
	}
	oldName = v.Name
	if oldName == newName {
		return nil
	}
	if _, exists := r.vars[newName]; exists {
		r.remove(newName)
	}

	v.Name = newName
	delete(r.vars, oldName)
	r.vars[newName] = v
	for i, n := range r.order {
		if n == oldName {
			r.order[i] = newName
		}
	}
	for _, other := range r.vars {
		for i, c := range other.Components {
			if c == oldName {
				other.Components[i] = newName
			}
		}
	}
	return nil
}

// Copy duplicates a variable under a new name.
func (r *Registry) Copy(oldName, newName string) error {
	newName, err := checkName(newName)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.lookup(oldName)
	if err != nil {
		return err
	}
	c := v.Clone()
	c.Name = newName
	c.Created = time.Now().UTC()
	r.put(c)
	return nil
}

// =============================================================================
// Names / queries
// =============================================================================

// Names returns the names matching any of the glob patterns, in insertion
// order. Without patterns all names are returned.
func (r *Registry) Names(patterns ...string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(patterns) == 0 {
		return append([]string(nil), r.order...)
	}

	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		for _, n := range r.match(p) {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// NamesRegexp returns the names matching the regular expression from
// their start.
func (r *Registry) NamesRegexp(expr string) ([]string, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)`)
	if err != nil {
		return nil, errors.NewInvalidValue("regular expression", expr, err.Error())
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, n := range r.order {
		if re.MatchString(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// match returns names matching pattern. Callers must hold r.mu.
func (r *Registry) match(pattern string) []string {
	pattern = validation.NormalizeName(pattern)
	if _, ok := r.vars[pattern]; ok {
		return []string{pattern}
	}
	if !validation.IsPattern(pattern) {
		log.Debug("name not in registry", "name", pattern)
		return nil
	}

	var out []string
	for _, n := range r.order {
		if ok, err := path.Match(pattern, n); err == nil && ok {
			out = append(out, n)
		}
	}
	return out
}

// Entry describes one variable for listings.
type Entry struct {
	Index      int
	Name       string
	Kind       tvar.Kind
	Samples    int
	Traces     int
	Components []string
	Start      time.Time
	End        time.Time
}

// List describes every variable in insertion order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.order))
	for i, n := range r.order {
		v := r.vars[n]
		e := Entry{
			Index:      i,
			Name:       n,
			Kind:       v.Kind(),
			Samples:    v.Len(),
			Traces:     v.Cols(),
			Components: append([]string(nil), v.Components...),
		}
		e.Start, e.End, _ = v.Trange()
		out = append(out, e)
	}
	return out
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.vars[validation.NormalizeName(name)]
	return ok
}

// IsPseudo reports whether name is a pseudo-variable.
func (r *Registry) IsPseudo(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[validation.NormalizeName(name)]
	return ok && v.IsPseudo()
}

// Timespan returns the first and last time of name. For a pseudo-variable
// it spans all components.
func (r *Registry) Timespan(name string) (time.Time, time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, err := r.lookup(name)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	vars := []*tvar.Variable{v}
	if v.IsPseudo() {
		vars = vars[:0]
		for _, c := range v.Components {
			if base, ok := r.vars[c]; ok {
				vars = append(vars, base)
			}
		}
	}

	var start, end time.Time
	found := false
	for _, b := range vars {
		s, e, ok := b.Trange()
		if !ok {
			continue
		}
		if !found || s.Before(start) {
			start = s
		}
		if !found || e.After(end) {
			end = e
		}
		found = true
	}
	if !found {
		return time.Time{}, time.Time{}, errors.Wrapf(errors.ErrEmptyData, "variable '%s'", name)
	}
	return start, end, nil
}

// CountTraces returns the number of line traces the named variables draw.
// Pseudo-variables count their components; spectrograms count zero.
func (r *Registry) CountTraces(names ...string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countTraces(names, 0)
}

func (r *Registry) countTraces(names []string, depth int) int {
	count := 0
	for _, n := range names {
		v, ok := r.vars[validation.NormalizeName(n)]
		if !ok {
			log.Warn("cannot count traces of unknown variable", "name", n)
			continue
		}
		if v.IsPseudo() {
			if depth <= len(r.order) {
				count += r.countTraces(v.Components, depth+1)
			}
			continue
		}
		count += v.TraceCount()
	}
	return count
}

// YLimits returns the smallest and largest finite value across names,
// optionally restricted to a time window.
func (r *Registry) YLimits(names []string, window *options.TimeRange) (float64, float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var lo, hi float64
	found := false
	for _, n := range names {
		v, err := r.lookup(n)
		if err != nil {
			return 0, 0, err
		}
		bases := []*tvar.Variable{v}
		if v.IsPseudo() {
			bases = bases[:0]
			for _, c := range v.Components {
				if b, ok := r.vars[c]; ok {
					bases = append(bases, b)
				}
			}
		}
		for _, b := range bases {
			var mn, mx float64
			var ok bool
			if window != nil {
				mn, mx, ok = b.DataRangeWithin(window.Start, window.End)
			} else {
				mn, mx, ok = b.DataRange()
			}
			if !ok {
				continue
			}
			if !found || mn < lo {
				lo = mn
			}
			if !found || mx > hi {
				hi = mx
			}
			found = true
		}
	}
	if !found {
		return 0, 0, errors.Wrapf(errors.ErrEmptyData, "no finite data in %s", strings.Join(names, ", "))
	}
	return lo, hi, nil
}

// =============================================================================
// Replace
// =============================================================================

// ReplaceData swaps the values of name for values of the same shape.
func (r *Registry) ReplaceData(name string, values [][]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.lookup(name)
	if err != nil {
		return err
	}
	if v.IsPseudo() {
		return errors.Wrapf(errors.ErrPseudoVariable, "replace data of '%s'", name)
	}

	rows, cols := v.Values.Dims()
	if len(values) != rows {
		return errors.Wrapf(errors.ErrShapeMismatch, "'%s': %d rows given, %d stored", name, len(values), rows)
	}
	for i, row := range values {
		if len(row) != cols {
			return errors.Wrapf(errors.ErrShapeMismatch, "'%s': row %d has %d values, %d stored", name, i, len(row), cols)
		}
	}
	for i, row := range values {
		v.Values.SetRow(i, row)
	}
	v.RefreshYRange()
	return nil
}

// ReplaceMetadata swaps the metadata of name for a copy of md.
func (r *Registry) ReplaceMetadata(name string, md map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.lookup(name)
	if err != nil {
		return err
	}
	v.Metadata = tvar.CloneMetadata(md)
	return nil
}
