// Package wire streams variables between processes.
//
// Each variable is one google.protobuf.Struct message, length-delimited
// using protobuf's standard varint encoding, so `tplot export | tplot
// import` moves variables between sessions without touching disk.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
	"gonum.org/v1/gonum/mat"

	"github.com/xtxerr/tplot/config"
	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/options"
	"github.com/xtxerr/tplot/internal/tvar"
)

// Version is written into every message.
const Version = 1

// Reader reads length-delimited variable messages from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r  *bufio.Reader
	mu sync.Mutex
}

// NewReader creates a Reader wrapping the given io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read reads the next variable. It returns io.EOF at the end of the
// stream. Messages larger than config.DefaultMaxMessageSize are rejected.
func (r *Reader) Read() (*tvar.Variable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := &structpb.Struct{}
	opts := protodelim.UnmarshalOptions{
		MaxSize: config.DefaultMaxMessageSize,
	}
	if err := opts.UnmarshalFrom(r.r, msg); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read variable: %w", err)
	}
	return Decode(msg)
}

// Writer writes length-delimited variable messages to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes and writes a variable with length prefix.
func (w *Writer) Write(v *tvar.Variable) error {
	msg, err := Encode(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := protodelim.MarshalTo(w.w, msg); err != nil {
		return fmt.Errorf("write variable '%s': %w", v.Name, err)
	}
	return nil
}

// Export writes vars to w.
func Export(w io.Writer, vars ...*tvar.Variable) error {
	ww := NewWriter(w)
	for _, v := range vars {
		if err := ww.Write(v); err != nil {
			return err
		}
	}
	return nil
}

// Import reads every variable from r.
func Import(r io.Reader) ([]*tvar.Variable, error) {
	rr := NewReader(r)
	var out []*tvar.Variable
	for {
		v, err := rr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// =============================================================================
// Encoding
// =============================================================================

// Encode converts a variable to a Struct message. Times are RFC 3339
// strings with nanoseconds; values are a list of rows.
func Encode(v *tvar.Variable) (*structpb.Struct, error) {
	optYAML, err := options.Marshal(v.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "variable '%s': encode options", v.Name)
	}
	md, err := structpb.NewStruct(normalizeMap(v.Metadata))
	if err != nil {
		return nil, errors.Wrapf(err, "variable '%s': encode metadata", v.Name)
	}

	fields := map[string]*structpb.Value{
		"version":  structpb.NewNumberValue(Version),
		"name":     structpb.NewStringValue(v.Name),
		"kind":     structpb.NewStringValue(string(v.Kind())),
		"options":  structpb.NewStringValue(optYAML),
		"created":  structpb.NewStringValue(v.Created.Format(time.RFC3339Nano)),
		"metadata": structpb.NewStructValue(md),
	}

	if len(v.Links) > 0 {
		links := &structpb.Struct{Fields: map[string]*structpb.Value{}}
		for k, name := range v.Links {
			links.Fields[k] = structpb.NewStringValue(name)
		}
		fields["links"] = structpb.NewStructValue(links)
	}

	if v.IsPseudo() {
		comps := make([]*structpb.Value, len(v.Components))
		for i, c := range v.Components {
			comps[i] = structpb.NewStringValue(c)
		}
		fields["components"] = structpb.NewListValue(&structpb.ListValue{Values: comps})
		return &structpb.Struct{Fields: fields}, nil
	}

	times := make([]*structpb.Value, len(v.Times))
	for i, t := range v.Times {
		times[i] = structpb.NewStringValue(t.Format(time.RFC3339Nano))
	}
	rows := make([]*structpb.Value, v.Len())
	for i := range rows {
		rows[i] = numberList(v.Row(i))
	}
	fields["times"] = structpb.NewListValue(&structpb.ListValue{Values: times})
	fields["values"] = structpb.NewListValue(&structpb.ListValue{Values: rows})
	if len(v.Bins) > 0 {
		fields["bins"] = numberList(v.Bins)
	}
	if len(v.Errors) > 0 {
		fields["errors"] = numberList(v.Errors)
	}
	return &structpb.Struct{Fields: fields}, nil
}

func numberList(xs []float64) *structpb.Value {
	vals := make([]*structpb.Value, len(xs))
	for i, x := range xs {
		vals[i] = structpb.NewNumberValue(x)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

// normalizeMap rewrites metadata into the types structpb accepts.
func normalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, uint, uint32, uint64:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []float64:
		out := make([]interface{}, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out
	case []string:
		out := make([]interface{}, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]interface{}:
		return normalizeMap(x)
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	default:
		return fmt.Sprint(x)
	}
}

// =============================================================================
// Decoding
// =============================================================================

// Decode converts a Struct message back into a variable. Metadata numbers
// come back as float64.
func Decode(msg *structpb.Struct) (*tvar.Variable, error) {
	f := msg.GetFields()
	if ver := f["version"].GetNumberValue(); ver != Version {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "unsupported wire version %v", ver)
	}
	name := f["name"].GetStringValue()
	if name == "" {
		return nil, errors.NewMissingField("name")
	}

	opts, err := options.UnmarshalOptions(f["options"].GetStringValue())
	if err != nil {
		return nil, errors.Wrapf(err, "variable '%s'", name)
	}
	v := &tvar.Variable{
		Name:     name,
		Options:  opts,
		Metadata: map[string]interface{}{},
		Links:    map[string]string{},
	}
	if md := f["metadata"].GetStructValue(); md != nil {
		v.Metadata = md.AsMap()
	}
	if links := f["links"].GetStructValue(); links != nil {
		for k, l := range links.GetFields() {
			v.Links[k] = l.GetStringValue()
		}
	}
	if c, err := time.Parse(time.RFC3339Nano, f["created"].GetStringValue()); err == nil {
		v.Created = c.UTC()
	}

	if tvar.Kind(f["kind"].GetStringValue()) == tvar.KindPseudo {
		for _, c := range f["components"].GetListValue().GetValues() {
			v.Components = append(v.Components, c.GetStringValue())
		}
		if len(v.Components) == 0 {
			return nil, errors.Wrapf(errors.NewMissingField("components"), "variable '%s'", name)
		}
		return v, nil
	}

	times := f["times"].GetListValue().GetValues()
	rows := f["values"].GetListValue().GetValues()
	if len(times) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "variable '%s'", name)
	}
	if len(rows) != len(times) {
		return nil, errors.Wrapf(errors.NewLengthMismatch("values", len(times), len(rows)), "variable '%s'", name)
	}

	v.Times = make([]time.Time, len(times))
	for i, t := range times {
		ts, err := time.Parse(time.RFC3339Nano, t.GetStringValue())
		if err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidTime, "variable '%s' time %d: %v", name, i, err)
		}
		v.Times[i] = ts.UTC()
	}

	cols := len(rows[0].GetListValue().GetValues())
	if cols == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "variable '%s' has no traces", name)
	}
	flat := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		vals := numbers(r)
		if len(vals) != cols {
			return nil, errors.Wrapf(errors.ErrShapeMismatch, "variable '%s': row %d has %d values, expected %d", name, i, len(vals), cols)
		}
		flat = append(flat, vals...)
	}
	v.Values = mat.NewDense(len(rows), cols, flat)

	if b, ok := f["bins"]; ok {
		v.Bins = numbers(b)
		if len(v.Bins) != cols {
			return nil, errors.Wrapf(errors.NewLengthMismatch("bins", cols, len(v.Bins)), "variable '%s'", name)
		}
	}
	if e, ok := f["errors"]; ok {
		v.Errors = numbers(e)
		if len(v.Errors) != len(times) {
			return nil, errors.Wrapf(errors.NewLengthMismatch("error values", len(times), len(v.Errors)), "variable '%s'", name)
		}
	}
	v.RefreshYRange()
	return v, nil
}

func numbers(v *structpb.Value) []float64 {
	vals := v.GetListValue().GetValues()
	out := make([]float64, len(vals))
	for i, x := range vals {
		if _, ok := x.GetKind().(*structpb.Value_NumberValue); ok {
			out[i] = x.GetNumberValue()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Names lists the variable names in a decoded batch, sorted.
func Names(vars []*tvar.Variable) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.Name
	}
	sort.Strings(out)
	return out
}
