package tvar

import (
	"math"
	"time"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/options"
)

// FromUnix converts float seconds since the Unix epoch to UTC times.
// Non-finite values map to the epoch.
func FromUnix(secs []float64) []time.Time {
	out := make([]time.Time, len(secs))
	for i, s := range secs {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		out[i] = options.FromUnixSeconds(s)
	}
	return out
}

// UnixSeconds converts times to float seconds since the Unix epoch.
func UnixSeconds(times []time.Time) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = Seconds(t)
	}
	return out
}

// Seconds converts t to float seconds since the Unix epoch.
func Seconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// ParseTimes parses time strings in any of the layouts options.ParseTime
// accepts.
func ParseTimes(in []string) ([]time.Time, error) {
	out := make([]time.Time, len(in))
	for i, s := range in {
		t, err := options.ParseTime(s)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidTime, "sample %d: %v", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// CloneMetadata deep-copies nested maps and slices of a metadata tree.
func CloneMetadata(md map[string]interface{}) map[string]interface{} {
	if md == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(md))
	for k, v := range md {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		return CloneMetadata(x)
	case []interface{}:
		c := make([]interface{}, len(x))
		for i, e := range x {
			c[i] = cloneValue(e)
		}
		return c
	case []float64:
		return append([]float64(nil), x...)
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}
