// Package address implements the Bech32 VASP addressing scheme used to
// identify the two parties of an off-chain channel.
package address

import (
	"bytes"
	"fmt"
)

// Network identifies which Bech32 human readable part an address was
// encoded with.
type Network string

const (
	Mainnet Network = "lbr"
	Testnet Network = "tlb"
)

const (
	addressSize    = 16
	subaddressSize = 8
	bech32Version  = 1
)

// Address is an opaque VASP identifier: a 16-byte on-chain address plus an
// optional 8-byte sub-address, encoded and decoded as Bech32.
type Address struct {
	network    Network
	onChain    [addressSize]byte
	subaddress [subaddressSize]byte
	hasSub     bool
	encoded    string
}

// New builds an Address from raw bytes. subaddress may be nil, in which
// case it is treated as the zero sub-address (per spec.md §6).
func New(network Network, onChain []byte, subaddress []byte) (Address, error) {
	if network != Mainnet && network != Testnet {
		return Address{}, fmt.Errorf("address: unsupported network %q", network)
	}
	if len(onChain) != addressSize {
		return Address{}, fmt.Errorf("address: on-chain address must be %d bytes, got %d", addressSize, len(onChain))
	}
	var a Address
	a.network = network
	copy(a.onChain[:], onChain)
	if subaddress != nil {
		if len(subaddress) != subaddressSize {
			return Address{}, fmt.Errorf("address: sub-address must be %d bytes, got %d", subaddressSize, len(subaddress))
		}
		copy(a.subaddress[:], subaddress)
		a.hasSub = !bytes.Equal(a.subaddress[:], make([]byte, subaddressSize))
	}
	enc, err := bech32Encode(string(network), a.onChain[:], a.subaddress[:])
	if err != nil {
		return Address{}, err
	}
	a.encoded = enc
	return a, nil
}

// Parse decodes a Bech32-encoded VASP address.
func Parse(encoded string) (Address, error) {
	hrp, version, onChain, sub, err := bech32Decode(encoded)
	if err != nil {
		return Address{}, err
	}
	if version != bech32Version {
		return Address{}, fmt.Errorf("address: unsupported version %d", version)
	}
	var a Address
	a.network = Network(hrp)
	copy(a.onChain[:], onChain)
	copy(a.subaddress[:], sub)
	a.hasSub = !bytes.Equal(a.subaddress[:], make([]byte, subaddressSize))
	a.encoded = encoded
	return a, nil
}

// String returns the canonical (lowercase) Bech32 representation.
func (a Address) String() string { return a.encoded }

// Network returns the Bech32 human readable part this address was built with.
func (a Address) Network() Network { return a.network }

// OnChainBytes returns the 16-byte on-chain address.
func (a Address) OnChainBytes() [addressSize]byte { return a.onChain }

// HasSubaddress reports whether a non-zero sub-address was supplied.
func (a Address) HasSubaddress() bool { return a.hasSub }

// Subaddress returns the 8-byte sub-address (zero-filled when absent).
func (a Address) Subaddress() [subaddressSize]byte { return a.subaddress }

// LastBit returns the last bit of the on-chain address, used for role
// election (spec.md §4.2).
func (a Address) LastBit() int {
	return int(a.onChain[addressSize-1] & 1)
}

// GreaterThanOrEqual compares two addresses lexicographically over the
// on-chain bytes.
func (a Address) GreaterThanOrEqual(other Address) bool {
	return bytes.Compare(a.onChain[:], other.onChain[:]) >= 0
}

// Equal reports whether two addresses refer to the same on-chain identity
// (network and on-chain bytes; the sub-address distinguishes accounts under
// the same VASP, not VASPs themselves).
func (a Address) Equal(other Address) bool {
	return a.network == other.network && a.onChain == other.onChain
}

// MarshalText implements encoding.TextMarshaler so Address can be used
// directly as a JSON field or map key.
func (a Address) MarshalText() ([]byte, error) {
	if a.encoded == "" {
		return nil, fmt.Errorf("address: cannot marshal zero-value address")
	}
	return []byte(a.encoded), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
