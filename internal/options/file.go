package options

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/tplot/internal/errors"
)

// File is the on-disk layout of an options file:
//
//	global:
//	  title: "Overview"
//	  window_size: [800, 600]
//	variables:
//	  B_gse:
//	    yrange: [-10, 10]
//	    color: [red, green, blue]
type File struct {
	Global    map[string]interface{}            `yaml:"global,omitempty"`
	Variables map[string]map[string]interface{} `yaml:"variables,omitempty"`
}

// LoadFile reads and parses an options file. Environment variables in the
// file are expanded.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses options file content.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, fmt.Sprintf("parse options file: %v", err))
	}
	return &f, nil
}

// ApplyGlobal applies the file's global section to g.
func (f *File) ApplyGlobal(g *Global) error {
	if len(f.Global) == 0 {
		return nil
	}
	return errors.Wrap(g.SetAll(f.Global), "global")
}

// Marshal renders options as YAML. It is used to persist options with a
// session.
func Marshal(v interface{}) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// UnmarshalOptions parses YAML produced by Marshal into variable options,
// starting from the defaults.
func UnmarshalOptions(s string) (Options, error) {
	o := Default()
	if s == "" {
		return o, nil
	}
	if err := yaml.Unmarshal([]byte(s), &o); err != nil {
		return o, fmt.Errorf("decode options: %w", err)
	}
	return o, nil
}

// UnmarshalGlobal parses YAML produced by Marshal into figure options.
func UnmarshalGlobal(s string) (Global, error) {
	g := DefaultGlobal()
	if s == "" {
		return g, nil
	}
	if err := yaml.Unmarshal([]byte(s), &g); err != nil {
		return g, fmt.Errorf("decode global options: %w", err)
	}
	return g, nil
}
