package validation

import (
	"strings"
	"testing"

	"github.com/xtxerr/tplot/internal/errors"
)

func TestValidateVariableName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "B_gse", false},
		{"with hyphen", "a-b_joined", false},
		{"with dot", "mvn.swe.flux", false},
		{"with plus", "n+", false},
		{"numbers", "123", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"control char", "a\x00b", true},
		{"space", "a b", false},
		{"brackets", "var[0]", false},
		{"colon", "a:b", false},
		{"unicode", "Δt", false},
		{"star", "B_*", true},
		{"question mark", "B_?", true},
		{"tab", "a\tb", true},
		{"too long", strings.Repeat("a", 256), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVariableName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVariableName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidName) {
				t.Errorf("expected ErrInvalidName, got %v", err)
			}
		})
	}
}

func TestValidateLinkType(t *testing.T) {
	for _, ok := range []string{"alt", "lat", "lon", "x"} {
		if err := ValidateLinkType(ok); err != nil {
			t.Errorf("ValidateLinkType(%q) unexpected error: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a.b", "a-b"} {
		if err := ValidateLinkType(bad); err == nil {
			t.Errorf("ValidateLinkType(%q) expected error", bad)
		}
	}
}

func TestIsPattern(t *testing.T) {
	if !IsPattern("B_*") || !IsPattern("x?") || !IsPattern("[ab]") {
		t.Error("expected glob patterns to be detected")
	}
	if IsPattern("B_gse") {
		t.Error("plain name reported as pattern")
	}
}

type sample struct {
	PanelSize float64 `validate:"gt=0,lte=1"`
	Alpha     float64 `validate:"gte=0,lte=1"`
	Method    string  `validate:"oneof=nan repeat linear"`
	Name      string  `validate:"varname"`
}

func TestStruct(t *testing.T) {
	ok := sample{PanelSize: 0.5, Alpha: 1, Method: "nan", Name: "x"}
	if err := Struct(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := sample{PanelSize: 0, Alpha: 2, Method: "cubic", Name: "a/b"}
	err := Struct(bad)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errors.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}

	var verrs *errors.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if len(verrs.Errors) != 4 {
		t.Errorf("expected 4 errors, got %d: %v", len(verrs.Errors), err)
	}
	if !strings.Contains(err.Error(), "panel_size") {
		t.Errorf("expected snake_case field name in %q", err.Error())
	}
}

func TestSafeLikePrefix(t *testing.T) {
	if got := SafeLikePrefix("B_g"); got != `B\_g%` {
		t.Errorf("SafeLikePrefix = %q", got)
	}
}

func TestNormalizeName(t *testing.T) {
	decomposed := "e\u0301nergy"
	composed := "\u00e9nergy"
	if got := NormalizeName("  " + decomposed + " "); got != composed {
		t.Errorf("NormalizeName = %q, expected %q", got, composed)
	}
}
