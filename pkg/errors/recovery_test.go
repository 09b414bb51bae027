package errors

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRecover_WithPanic(t *testing.T) {
	fit := func() (err error) {
		defer Recover(&err, "Tree.Fit")
		var nodes []int
		_ = nodes[3]
		return nil
	}

	err := fit()
	if err == nil {
		t.Fatal("Expected error from recovered panic, got nil")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if panicErr.Operation != "Tree.Fit" {
		t.Errorf("Expected operation 'Tree.Fit', got '%s'", panicErr.Operation)
	}
	if panicErr.Stack == "" {
		t.Error("Expected non-empty stack trace")
	}
	if !strings.HasPrefix(panicErr.Error(), "panic in Tree.Fit: ") {
		t.Errorf("unexpected message %q", panicErr.Error())
	}
}

func TestRecover_WithoutPanic(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err, "Decompose")
		return nil
	}

	if err := fn(); err != nil {
		t.Fatalf("Expected no error when no panic occurs, got: %v", err)
	}
}

func TestRecover_WithExistingError(t *testing.T) {
	originalErr := fmt.Errorf("original error")

	fn := func() (err error) {
		defer Recover(&err, "Decompose")
		err = originalErr
		panic("panic after error")
	}

	err := fn()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "panic in Decompose") {
		t.Errorf("Error message should contain panic info: %s", err)
	}
	if !errors.Is(err, originalErr) {
		t.Error("Should be able to identify original error with errors.Is")
	}
	var panicErr *PanicError
	if !errors.As(err, &panicErr) || panicErr.Previous != originalErr {
		t.Errorf("Expected PanicError keeping the original error, got %#v", err)
	}
}

func TestRecover_ErrorValueUnwraps(t *testing.T) {
	fn := func() (err error) {
		defer Recover(&err, "Cache.Load")
		panic(ErrEmptyBackground)
	}

	err := fn()
	if !Is(err, ErrEmptyBackground) {
		t.Errorf("panic value should be reachable through Unwrap: %v", err)
	}
}

func TestPanicError_MarshalZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	pe := NewPanicError("partition.Fit", "index out of range")
	pe.Previous = fmt.Errorf("earlier failure")
	logger.Error().EmbedObject(pe).Msg("recovered")

	out := buf.String()
	for _, want := range []string{`"operation":"partition.Fit"`, `"panic":"index out of range"`, `"previous":"earlier failure"`, `"stack":`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s is missing %s", out, want)
		}
	}
}

func TestSafeExecute(t *testing.T) {
	if err := SafeExecute("ok", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fnErr := fmt.Errorf("function error")
	if err := SafeExecute("fails", func() error { return fnErr }); err != fnErr {
		t.Fatalf("Expected original error, got: %v", err)
	}

	err := SafeExecute("panics", func() error { panic("boom") })
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if !strings.Contains(panicErr.String(), "Stack trace:") {
		t.Error("String() should include stack trace information")
	}
}
