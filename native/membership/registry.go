package membership

import (
	"errors"
	"fmt"

	"grantchain/core/events"
)

var (
	// ErrUnknownRole is returned for role names outside the known set.
	ErrUnknownRole = errors.New("membership: unknown role")
	// ErrNotAuthorized marks governance calls from accounts outside the root set.
	ErrNotAuthorized = errors.New("membership: caller not authorized")

	errNilState = errors.New("membership: state not configured")
)

type registryState interface {
	RoleMembers(role string) ([][20]byte, error)
	SetRoleMembers(role string, members [][20]byte) error
	IsRoleMember(role string, addr [20]byte) (bool, error)
}

// Registry maintains the authorized account sets for every role.
type Registry struct {
	state   registryState
	emitter events.Emitter
}

// NewRegistry constructs a registry backed by the provided state accessor.
func NewRegistry(state registryState) *Registry {
	return &Registry{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the registry.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) withState() (registryState, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	return r.state, nil
}

// Contains reports whether account is a member of role.
func (r *Registry) Contains(role Role, account [20]byte) (bool, error) {
	state, err := r.withState()
	if err != nil {
		return false, err
	}
	if !role.valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return state.IsRoleMember(role.String(), account)
}

// IsMember is the boolean form of Contains. Read failures count as "not a
// member" so callers fail closed.
func (r *Registry) IsMember(role Role, account [20]byte) bool {
	ok, err := r.Contains(role, account)
	return err == nil && ok
}

// Members returns the sorted member list of role.
func (r *Registry) Members(role Role) ([][20]byte, error) {
	state, err := r.withState()
	if err != nil {
		return nil, err
	}
	if !role.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return state.RoleMembers(role.String())
}

// SetMembers replaces the member set of role wholesale. It performs no
// authorization; genesis and already-authorized governance paths call it.
func (r *Registry) SetMembers(role Role, accounts [][20]byte) error {
	state, err := r.withState()
	if err != nil {
		return err
	}
	if !role.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if err := state.SetRoleMembers(role.String(), accounts); err != nil {
		return fmt.Errorf("membership: set %s members: %w", role, err)
	}
	stored, err := state.RoleMembers(role.String())
	if err != nil {
		return err
	}
	r.emitter.Emit(events.MembersReset{Role: role.String(), Members: len(stored)})
	return nil
}

// ReplaceMembers is the governance entry point: caller must sit on the root
// committee.
func (r *Registry) ReplaceMembers(caller [20]byte, role Role, accounts [][20]byte) error {
	isRoot, err := r.Contains(RoleRoot, caller)
	if err != nil {
		return err
	}
	if !isRoot {
		return ErrNotAuthorized
	}
	return r.SetMembers(role, accounts)
}
