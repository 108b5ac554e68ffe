package registry

import (
	"strings"
	"time"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/tvar"
	"github.com/xtxerr/tplot/internal/validation"
)

// =============================================================================
// Per-variable options
// =============================================================================

// SetOption applies one plot option to each named variable. Names that are
// not registered are skipped with a warning; it is an error only when none
// of them exist.
func (r *Registry) SetOption(names []string, option string, value interface{}) error {
	return r.SetOptions(names, map[string]interface{}{option: value})
}

// SetOptions applies several plot options to each named variable. Names
// may be glob patterns.
func (r *Registry) SetOptions(names []string, values map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := r.resolveTargets(names)
	if len(targets) == 0 {
		return errors.NewVariableNotFound(joinNames(names))
	}

	for _, v := range targets {
		next := v.Options.Clone()
		if err := next.SetAll(values); err != nil {
			return errors.Wrapf(err, "variable '%s'", v.Name)
		}
		if next.Spec && len(v.Bins) == 0 && !v.IsPseudo() {
			return errors.NewInvalidOption("spec", true, "variable '"+v.Name+"' has no spectral bins")
		}
		if next.ZLog && hasNegative(v) {
			log.Warn("negative values are ignored on a log z axis", "name", v.Name)
		}
		if next.YLog && hasNegative(v) && !next.Spec {
			log.Warn("negative values are ignored on a log y axis", "name", v.Name)
		}

		specChanged := next.Spec != v.Options.Spec
		v.Options = next
		if specChanged {
			v.RefreshYRange()
		}
	}
	return nil
}

// ApplyOptionsFile applies an options file: its global section to the
// figure options and each variable section to the matching variables.
func (r *Registry) ApplyOptionsFile(f *options.File) error {
	r.mu.Lock()
	g := r.global.Clone()
	err := f.ApplyGlobal(&g)
	if err == nil {
		r.global = g
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}

	verrs := errors.NewValidationErrors()
	for name, values := range f.Variables {
		verrs.Add(r.SetOptions([]string{name}, values))
	}
	return verrs.Err()
}

// Ylim sets the y range of name.
func (r *Registry) Ylim(name string, min, max float64) error {
	return r.SetOption([]string{name}, "yrange", []float64{min, max})
}

// Zlim sets the z (color) range of name.
func (r *Registry) Zlim(name string, min, max float64) error {
	return r.SetOption([]string{name}, "zrange", []float64{min, max})
}

// Link records that linkName holds the linkType coordinate (alt, lat, lon,
// x, y, z ...) of each named variable.
func (r *Registry) Link(names []string, linkName, linkType string) error {
	linkType = strings.ToLower(strings.TrimSpace(linkType))
	if linkType == "" {
		linkType = "alt"
	}
	if err := validation.ValidateLinkType(linkType); err != nil {
		return err
	}
	linkName = validation.NormalizeName(linkName)

	r.mu.Lock()
	defer r.mu.Unlock()

	targets := r.resolveTargets(names)
	if len(targets) == 0 {
		return errors.NewVariableNotFound(joinNames(names))
	}
	for _, v := range targets {
		v.Links[linkType] = linkName
	}
	return nil
}

// resolveTargets maps names and patterns to stored variables. Callers must
// hold r.mu.
func (r *Registry) resolveTargets(names []string) []*tvar.Variable {
	var out []*tvar.Variable
	seen := make(map[string]bool)
	for _, n := range names {
		matched := r.match(n)
		if len(matched) == 0 {
			log.Warn("variable not in registry", "name", n)
		}
		for _, m := range matched {
			if !seen[m] {
				seen[m] = true
				out = append(out, r.vars[m])
			}
		}
	}
	return out
}

func hasNegative(v *tvar.Variable) bool {
	lo, _, ok := v.DataRange()
	return ok && lo < 0
}

// =============================================================================
// Figure options
// =============================================================================

// Global returns a copy of the figure options.
func (r *Registry) Global() options.Global {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global.Clone()
}

// SetGlobal applies one figure option.
func (r *Registry) SetGlobal(option string, value interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.global.Set(option, value)
}

// SetGlobals applies several figure options, all or nothing.
func (r *Registry) SetGlobals(values map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.global.SetAll(values)
}

// Xlim sets the time range shared by all panels.
func (r *Registry) Xlim(start, end time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.global.Xlim(start, end)
}

// Tlimit switches the shared time range to "full" or "last", or to an
// explicit window when given two times.
func (r *Registry) Tlimit(arg string, window ...time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(window) == 2 {
		return r.global.Xlim(window[0], window[1])
	}
	return r.global.Tlimit(arg)
}

// Timestamp turns the figure timestamp on or off.
func (r *Registry) Timestamp(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global.SetTimestamp(on, time.Now())
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
