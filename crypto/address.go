package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of a bech32 account address.
type AddressPrefix string

const (
	// AccountPrefix is the prefix used for every chain participant.
	AccountPrefix AddressPrefix = "grnt"

	// AddressLength is the raw byte length of an account identity.
	AddressLength = 20
)

// Address represents a 20-byte account identity with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  [AddressLength]byte
}

// NewAddress wraps raw account bytes. The slice must be exactly 20 bytes.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", AddressLength, len(b))
	}
	var out Address
	out.prefix = prefix
	copy(out.bytes[:], b)
	return out, nil
}

// MustNewAddress is NewAddress for inputs already known to be well formed.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// FromAccount renders a raw account identity with the default prefix.
func FromAccount(account [AddressLength]byte) Address {
	return Address{prefix: AccountPrefix, bytes: account}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a.bytes[:])
	return out
}

// Account returns the raw identity backing the address.
func (a Address) Account() [AddressLength]byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// DecodeAddress parses any bech32 address carrying a 20-byte payload.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(AddressPrefix(prefix), conv)
}

// ParseAccount decodes an account address and insists on the chain prefix.
func ParseAccount(addrStr string) ([AddressLength]byte, error) {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		return [AddressLength]byte{}, fmt.Errorf("decode account: %w", err)
	}
	if addr.prefix != AccountPrefix {
		return [AddressLength]byte{}, fmt.Errorf("decode account: unsupported prefix %q", addr.prefix)
	}
	return addr.bytes, nil
}

// AccountString is shorthand for FromAccount(account).String().
func AccountString(account [AddressLength]byte) string {
	return FromAccount(account).String()
}

// DevAccount derives a throwaway account identity from a label. It is only
// meant for tests and local devnets; production accounts come from real keys.
func DevAccount(label string) [AddressLength]byte {
	var out [AddressLength]byte
	digest := crypto.Keccak256([]byte("grantchain/dev/" + label))
	copy(out[:], digest[len(digest)-AddressLength:])
	return out
}
