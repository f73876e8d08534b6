package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	if err := Guard(nil, ModuleAllocations); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	pauses := Pauses{Allocations: true}
	if err := Guard(pauses, ModuleAllocations); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := Guard(pauses, ModuleGrants); err != nil {
		t.Fatalf("grants not paused: %v", err)
	}
	if pauses.IsPaused("unknown") {
		t.Fatalf("unknown modules are never paused")
	}
}
