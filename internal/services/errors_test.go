package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"mailroom/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "extract", "pdf", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"extract", "pdf", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

type kindError struct{ kind string }

func (e kindError) Error() string     { return "kinded" }
func (e kindError) ErrorKind() string { return e.kind }

func TestErrorKindMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "analyze", "decode", "bad json", nil), "validation"},
		{services.Wrap(services.ErrNotFound, "extract", "open", "", nil), "not_found"},
		{services.Wrap(services.ErrExternalTool, "extract", "pdf", "", errors.New("x")), "external"},
		{errors.New("plain"), "transient"},
		{fmt.Errorf("outer: %w", kindError{kind: "directory_not_found"}), "directory_not_found"},
	}
	for _, tt := range tests {
		if got := services.ErrorKind(tt.err); got != tt.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
