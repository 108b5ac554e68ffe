package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategories(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		notFound   bool
		data       bool
		validation bool
	}{
		{"variable not found", NewVariableNotFound("x"), true, false, false},
		{"generic not found", NewNotFound("session", "/tmp/s"), true, false, false},
		{"length mismatch", NewLengthMismatch("values", 3, 2), false, true, false},
		{"empty", fmt.Errorf("store: %w", ErrEmptyData), false, true, false},
		{"invalid option", NewInvalidOption("alpha", 2.0, "must be in [0,1]"), false, false, true},
		{"invalid value", NewInvalidValue("level", "loud", "unknown"), false, false, true},
		{"timeout", Wrap(ErrTimeout, "get .1.3"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound=%v, expected %v", got, tt.notFound)
			}
			if got := IsDataError(tt.err); got != tt.data {
				t.Errorf("IsDataError=%v, expected %v", got, tt.data)
			}
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation=%v, expected %v", got, tt.validation)
			}
		})
	}
}

func TestIsRetriable(t *testing.T) {
	if !IsRetriable(Wrapf(ErrTimeout, "get %s", ".1.3")) {
		t.Error("expected a timeout to be retriable")
	}
	if !IsRetriable(Wrap(ErrConnectionFailed, "dial")) {
		t.Error("expected a connection failure to be retriable")
	}
	if IsRetriable(NewNotFound("OID", ".1.3")) {
		t.Error("expected a missing OID not to be retriable")
	}
}

func TestErrorToCode(t *testing.T) {
	tests := []struct {
		err  error
		code int32
		exit int
	}{
		{NewVariableNotFound("x"), CodeNotFound, 1},
		{ErrLengthMismatch, CodeInvalidData, 1},
		{ErrInvalidRange, CodeInvalidOption, 2},
		{NewInvalidOption("ylog", "3", "not a bool"), CodeInvalidOption, 2},
		{nil, CodeOK, 0},
		{NewMissingField("name"), CodeUsage, 2},
		{Wrap(ErrUnsupportedFormat, "plot"), CodeRender, 1},
		{errors.New("boom"), CodeFailure, 1},
	}

	for _, tt := range tests {
		if got := ErrorToCode(tt.err); got != tt.code {
			t.Errorf("ErrorToCode(%v) = %s, expected %s", tt.err, CodeName(got), CodeName(tt.code))
		}
		if got := ExitCode(tt.err); got != tt.exit {
			t.Errorf("ExitCode(%v) = %d, expected %d", tt.err, got, tt.exit)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("expected nil error for empty collection")
	}

	v.Add(nil)
	v.AddField("alpha", "out of range")
	v.Add(NewVariableNotFound("b"))

	if !v.HasErrors() {
		t.Fatal("expected errors")
	}
	err := v.Err()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("expected ErrInvalidConfig in chain")
	}
	if !errors.Is(err, ErrVariableNotFound) {
		t.Error("expected ErrVariableNotFound in chain")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Error("wrapping nil should return nil")
	}
}
