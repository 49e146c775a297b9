package terminal

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindValidation, "validation"},
		{KindNotFound, "not_found"},
		{KindUnavailable, "unavailable"},
		{KindSpawn, "spawn_failure"},
		{KindCrash, "crashed"},
		{KindCapability, "capability_mismatch"},
		{KindUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestError_MessageAndUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := &Error{Op: "terminal.Close", Kind: KindNotFound, Target: "abc", Err: base}
	if got := err.Error(); got != "terminal.Close abc: boom" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, base) {
		t.Error("errors.Is should see the wrapped error")
	}
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	inner := newError("terminal.Get", KindNotFound, "x", "terminal not found")
	wrapped := fmt.Errorf("handler: %w", inner)
	if KindOf(wrapped) != KindNotFound {
		t.Fatalf("KindOf = %v, want not_found", KindOf(wrapped))
	}
	if !IsKind(wrapped, KindNotFound) {
		t.Fatal("IsKind should match through wrapping")
	}
	if TargetOf(wrapped) != "x" {
		t.Fatalf("TargetOf = %q", TargetOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("plain errors have no kind")
	}
	if IsKind(nil, KindUnknown) {
		t.Fatal("nil is never of any kind")
	}
}

func TestErrUnavailable_CarriesHint(t *testing.T) {
	if ErrUnavailable.Kind != KindUnavailable {
		t.Fatalf("unexpected kind %v", ErrUnavailable.Kind)
	}
	if !strings.Contains(ErrUnavailable.Error(), "/dev/ptmx") {
		t.Fatalf("remediation hint missing: %q", ErrUnavailable.Error())
	}
}
