package membership

import (
	"fmt"
	"strings"
)

// Role names an authorized account set. All roles share one implementation;
// only the name differs.
type Role string

const (
	// RoleOracle may allocate coins through the allocation ledger.
	RoleOracle Role = "oracle"
	// RoleTechnical is the technical committee.
	RoleTechnical Role = "technical"
	// RoleFinancial is the financial committee.
	RoleFinancial Role = "financial"
	// RoleRoot is the root committee; it governs every other role.
	RoleRoot Role = "root"
)

var knownRoles = []Role{RoleFinancial, RoleOracle, RoleRoot, RoleTechnical}

// Roles returns every known role in sorted order.
func Roles() []Role {
	return append([]Role(nil), knownRoles...)
}

// ParseRole normalises and validates a role name.
func ParseRole(value string) (Role, error) {
	normalized := Role(strings.ToLower(strings.TrimSpace(value)))
	for _, role := range knownRoles {
		if role == normalized {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
}

func (r Role) String() string { return string(r) }

func (r Role) valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}
