package common

import (
	"errors"
	"fmt"
)

var ErrModulePaused = errors.New("module paused")

const (
	ModuleAllocations = "allocations"
	ModuleGrants      = "grants"
	ModuleTransfers   = "transfers"
)

type PauseView interface {
	IsPaused(module string) bool
}

// Pauses holds the governance pause toggles for every native module.
type Pauses struct {
	Allocations bool `json:"allocations"`
	Grants      bool `json:"grants"`
	Transfers   bool `json:"transfers"`
}

// IsPaused implements PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case ModuleAllocations:
		return p.Allocations
	case ModuleGrants:
		return p.Grants
	case ModuleTransfers:
		return p.Transfers
	default:
		return false
	}
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
