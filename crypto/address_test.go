package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountRoundTrip(t *testing.T) {
	account := DevAccount("ferdie")
	encoded := AccountString(account)
	require.True(t, strings.HasPrefix(encoded, string(AccountPrefix)+"1"))

	decoded, err := ParseAccount("  " + encoded + " ")
	require.NoError(t, err)
	require.Equal(t, account, decoded)
}

func TestParseAccountRejectsForeignPrefix(t *testing.T) {
	foreign := MustNewAddress("other", make([]byte, AddressLength)).String()
	_, err := ParseAccount(foreign)
	require.ErrorContains(t, err, "unsupported prefix")

	_, err = ParseAccount("grnt1notbech32")
	require.Error(t, err)
}

func TestNewAddressLength(t *testing.T) {
	_, err := NewAddress(AccountPrefix, []byte{1, 2, 3})
	require.Error(t, err)
	require.NotEqual(t, DevAccount("alice"), DevAccount("bob"))
}
