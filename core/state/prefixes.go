package state

import "fmt"

var (
	balancePrefix      = []byte("balance/native/")
	rolePrefix         = []byte("membership/")
	paramPrefix        = []byte("params/")
	blockHeightKeyByte = []byte("chain/height")
	genesisMarkerByte  = []byte("chain/genesis")
)

// BalanceKey returns the unhashed key holding an account's native balance.
func BalanceKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", balancePrefix, addr))
}

// RoleKey returns the unhashed key holding a role's sorted member list.
func RoleKey(role string) []byte {
	return []byte(fmt.Sprintf("%s%s", rolePrefix, role))
}

// ParamStoreKey returns the unhashed key for a governance parameter.
func ParamStoreKey(name string) []byte {
	return []byte(fmt.Sprintf("%s%s", paramPrefix, name))
}

// BlockHeightKey returns the key holding the host supplied block height.
func BlockHeightKey() []byte {
	return append([]byte(nil), blockHeightKeyByte...)
}

// GenesisMarkerKey returns the key written once genesis has been applied.
func GenesisMarkerKey() []byte {
	return append([]byte(nil), genesisMarkerByte...)
}
