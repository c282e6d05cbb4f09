package address

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestAddress_EncodeMatchesGoldenVectors(t *testing.T) {
	onChain := mustHex(t, "f72589b71ff4f8d139674a3f7369c69b")
	sub := mustHex(t, "cf64428bdeb62af2")

	noSub, err := New(Mainnet, onChain, nil)
	require.NoError(t, err)
	require.Equal(t, "lbr1p7ujcndcl7nudzwt8fglhx6wxnvqqqqqqqqqqqqqflf8ma", noSub.String())

	zeroSub, err := New(Mainnet, onChain, make([]byte, 8))
	require.NoError(t, err)
	require.Equal(t, noSub.String(), zeroSub.String())

	withSub, err := New(Mainnet, onChain, sub)
	require.NoError(t, err)
	require.Equal(t, "lbr1p7ujcndcl7nudzwt8fglhx6wxn08kgs5tm6mz4usw5p72t", withSub.String())

	testnet, err := New(Testnet, onChain, sub)
	require.NoError(t, err)
	require.Equal(t, "tlb1p7ujcndcl7nudzwt8fglhx6wxn08kgs5tm6mz4usugm707", testnet.String())
}

func TestAddress_DecodeRoundTrips(t *testing.T) {
	onChain := mustHex(t, "f72589b71ff4f8d139674a3f7369c69b")
	sub := mustHex(t, "cf64428bdeb62af2")

	a, err := Parse("lbr1p7ujcndcl7nudzwt8fglhx6wxn08kgs5tm6mz4usw5p72t")
	require.NoError(t, err)
	got := a.OnChainBytes()
	require.Equal(t, onChain, got[:])
	gotSub := a.Subaddress()
	require.Equal(t, sub, gotSub[:])
	require.True(t, a.HasSubaddress())
}

func TestAddress_DecodeIsCaseInsensitiveButNotMixedCase(t *testing.T) {
	lower := "lbr1p7ujcndcl7nudzwt8fglhx6wxn08kgs5tm6mz4usw5p72t"
	upper := "LBR1P7UJCNDCL7NUDZWT8FGLHX6WXN08KGS5TM6MZ4USW5P72T"

	a, err := Parse(upper)
	require.NoError(t, err)
	b, err := Parse(lower)
	require.NoError(t, err)
	require.True(t, a.Equal(b))

	mixed := "lbR1p7ujcndcl7nudzwt8fglhx6wxn08kgs5tm6mz4usw5p72t"
	_, err = Parse(mixed)
	require.Error(t, err)
}

func TestAddress_DecodeRejectsWrongNetworkAndLength(t *testing.T) {
	_, err := Parse("btc1p7ujcndcl7nudzwt8fglhx6wxn08kgs5tm6mz4usw5p72t")
	require.Error(t, err)

	_, err = Parse("lbr1abc")
	require.Error(t, err)
}

func TestAddress_LastBitAndOrdering(t *testing.T) {
	evenTail := mustHex(t, "00000000000000000000000000000002")[1:]
	oddTail := mustHex(t, "00000000000000000000000000000003")[1:]

	even, err := New(Mainnet, evenTail, nil)
	require.NoError(t, err)
	odd, err := New(Mainnet, oddTail, nil)
	require.NoError(t, err)

	require.Equal(t, 0, even.LastBit())
	require.Equal(t, 1, odd.LastBit())
	require.True(t, odd.GreaterThanOrEqual(even))
	require.False(t, even.GreaterThanOrEqual(odd))
}

func TestAddress_MarshalTextRoundTrip(t *testing.T) {
	onChain := mustHex(t, "f72589b71ff4f8d139674a3f7369c69b")
	a, err := New(Mainnet, onChain, nil)
	require.NoError(t, err)

	text, err := a.MarshalText()
	require.NoError(t, err)

	var b Address
	require.NoError(t, b.UnmarshalText(text))
	require.True(t, a.Equal(b))
}
