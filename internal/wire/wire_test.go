package wire

import (
	"bytes"
	"io"
	"math"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/tvar"
)

var t0 = time.Date(2016, 11, 1, 0, 0, 0, 123456789, time.UTC)

func testVariables(t *testing.T) []*tvar.Variable {
	t.Helper()
	line, err := tvar.New("b_gse", tvar.Data{
		Times:    []time.Time{t0, t0.Add(time.Second)},
		Values:   [][]float64{{1, math.NaN()}, {3, 4}},
		Errors:   []float64{0.5, 0.25},
		Metadata: map[string]interface{}{"units": "nT", "axes": []string{"x", "y"}, "scale": []float64{1, 2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	line.Options.YTitle = "B"
	line.Links["alt"] = "altitude"

	spec, err := tvar.New("spec", tvar.Data{
		Times:  []time.Time{t0, t0.Add(time.Second)},
		Values: [][]float64{{1, 2, 3}, {4, 5, 6}},
		Bins:   []float64{10, 20, 30},
	})
	if err != nil {
		t.Fatal(err)
	}
	return []*tvar.Variable{line, spec, tvar.NewPseudo("both", line, []string{"b_gse", "spec"})}
}

func TestExportImport(t *testing.T) {
	vars := testVariables(t)

	var buf bytes.Buffer
	if err := Export(&buf, vars...); err != nil {
		t.Fatalf("Export: %v", err)
	}
	got, err := Import(&buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 variables, got %d", len(got))
	}

	line := got[0]
	if line.Name != "b_gse" || !line.Times[0].Equal(t0) {
		t.Errorf("unexpected name or time: %s %v", line.Name, line.Times[0])
	}
	if !math.IsNaN(line.Values.At(0, 1)) || line.Values.At(1, 1) != 4 {
		t.Errorf("unexpected values: %v", line.Values.RawMatrix().Data)
	}
	if line.Errors[1] != 0.25 {
		t.Errorf("expected errors to survive, got %v", line.Errors)
	}
	if line.Options.YTitle != "B" || line.Links["alt"] != "altitude" {
		t.Errorf("options or links lost: %q %v", line.Options.YTitle, line.Links)
	}
	if line.Metadata["units"] != "nT" {
		t.Errorf("metadata lost: %v", line.Metadata)
	}
	if axes, ok := line.Metadata["axes"].([]interface{}); !ok || len(axes) != 2 {
		t.Errorf("expected list metadata, got %v", line.Metadata["axes"])
	}

	if len(got[1].Bins) != 3 || got[1].Cols() != 3 {
		t.Errorf("spectrogram shape lost: bins %v cols %d", got[1].Bins, got[1].Cols())
	}
	if !got[2].IsPseudo() || got[2].Components[1] != "spec" {
		t.Errorf("pseudo-variable lost: %+v", got[2].Components)
	}

	names := Names(got)
	if names[0] != "b_gse" || names[2] != "spec" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestImportEmpty(t *testing.T) {
	got, err := Import(&bytes.Buffer{})
	if err != nil || len(got) != 0 {
		t.Errorf("expected nothing, got %v %v", got, err)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]interface{}
		want   error
	}{
		{"version", map[string]interface{}{"version": 99, "name": "x"}, errors.ErrInvalidConfig},
		{"name", map[string]interface{}{"version": Version}, errors.ErrMissingField},
		{"empty", map[string]interface{}{"version": Version, "name": "x", "kind": "line"}, errors.ErrEmptyData},
		{"length", map[string]interface{}{
			"version": Version, "name": "x", "kind": "line",
			"times":  []interface{}{t0.Format(time.RFC3339Nano)},
			"values": []interface{}{[]interface{}{1.0}, []interface{}{2.0}},
		}, errors.ErrLengthMismatch},
		{"shape", map[string]interface{}{
			"version": Version, "name": "x", "kind": "line",
			"times":  []interface{}{t0.Format(time.RFC3339Nano), t0.Format(time.RFC3339Nano)},
			"values": []interface{}{[]interface{}{1.0}, []interface{}{2.0, 3.0}},
		}, errors.ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := structpb.NewStruct(tt.fields)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := Decode(msg); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestReaderTruncated(t *testing.T) {
	var buf bytes.Buffer
	msg, _ := Encode(testVariables(t)[0])
	if _, err := protodelim.MarshalTo(&buf, msg); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()[:buf.Len()-5]

	_, err := NewReader(bytes.NewReader(data)).Read()
	if err == nil || err == io.EOF {
		t.Errorf("expected a read error on a truncated stream, got %v", err)
	}
}
