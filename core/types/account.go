package types

import "github.com/holiman/uint256"

// AccountView summarises an account's native balance at a block height,
// split into the portion still held back by vesting and the free remainder.
type AccountView struct {
	Address      [20]byte     `json:"-"`
	Balance      *uint256.Int `json:"balance"`
	Locked       *uint256.Int `json:"locked"`
	Transferable *uint256.Int `json:"transferable"`
	Height       uint64       `json:"height"`
}
