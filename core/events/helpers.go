package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"grantchain/crypto"
)

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func formatAccount(account [20]byte) string {
	return crypto.AccountString(account)
}
