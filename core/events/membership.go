package events

import "grantchain/core/types"

const (
	// TypeMembersReset is emitted whenever a role set is replaced.
	TypeMembersReset = "membership.reset"
)

type MembersReset struct {
	Role    string
	Members int
}

func (MembersReset) EventType() string { return TypeMembersReset }

func (e MembersReset) Event() *types.Event {
	return &types.Event{
		Type: TypeMembersReset,
		Attributes: map[string]string{
			"role":    e.Role,
			"members": formatUint(uint64(e.Members)),
		},
	}
}
