package options

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/tplot/internal/validation"
)

func init() {
	validation.RegisterChoice("linestyle", lineStyles...)
	validation.RegisterChoice("marker", markers...)
	validation.RegisterChoice("colormap", colormaps...)
}

// Values from the command line arrive as strings; lists are comma separated.
func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	case fmt.Stringer:
		return v.String(), nil
	case int, int64, float64, bool:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("expected string, got %T", value)
	}
}

func toStrings(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case string:
		return splitList(v), nil
	case []string:
		return cloneStrings(v), nil
	case []interface{}:
		out := make([]string, len(v))
		for i, e := range v {
			s, err := toString(e)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		s, err := toString(value)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

func toFloats(value interface{}) ([]float64, error) {
	switch v := value.(type) {
	case []float64:
		return cloneFloats(v), nil
	case []int:
		out := make([]float64, len(v))
		for i, e := range v {
			out[i] = float64(e)
		}
		return out, nil
	case string:
		return toFloats(stringsToInterfaces(splitList(v)))
	case []string:
		return toFloats(stringsToInterfaces(v))
	case []interface{}:
		out := make([]float64, len(v))
		for i, e := range v {
			f, err := toFloat(e)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		f, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	}
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "on", "yes", "y":
			return true, nil
		case "off", "no", "n":
			return false, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("expected boolean, got %q", v)
		}
		return b, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", value)
	}
}

// ParseTime parses an absolute time given as RFC 3339, a date, a date and
// clock time, or float seconds since the Unix epoch.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FromUnixSeconds(f), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// FromUnixSeconds converts float seconds since the epoch to a UTC time.
func FromUnixSeconds(sec float64) time.Time {
	whole := int64(sec)
	frac := sec - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC()
}

func toTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return ParseTime(v)
	default:
		f, err := toFloat(value)
		if err != nil {
			return time.Time{}, fmt.Errorf("expected time, got %T", value)
		}
		return FromUnixSeconds(f), nil
	}
}

func toTimes(value interface{}) ([]time.Time, error) {
	var items []interface{}
	switch v := value.(type) {
	case []time.Time:
		return append([]time.Time(nil), v...), nil
	case string:
		items = stringsToInterfaces(splitList(v))
	case []string:
		items = stringsToInterfaces(v)
	case []float64:
		for _, f := range v {
			items = append(items, f)
		}
	case []interface{}:
		items = v
	default:
		return nil, fmt.Errorf("expected list of times, got %T", value)
	}

	out := make([]time.Time, len(items))
	for i, item := range items {
		t, err := toTime(item)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func stringsToInterfaces(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, e := range s {
		out[i] = e
	}
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
