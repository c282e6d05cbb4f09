package address

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Libra/Diem uses a Bech32 variant with its own checksum generator
// polynomial, distinct from the BIP-173 constants. The five generators and
// the checksum constant below are fixed and must match peers bit-for-bit
// (spec.md §6); no pack library implements this constant set, so the
// checksum itself is hand-written. The generic 5-bit/8-bit base conversion
// has no protocol-specific behavior, so it is reused from btcutil.
const (
	charset            = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
	separator          = "1"
	checksumCharSize   = 6
	totalEncodedLength = 50
)

var generator = [5]uint32{0x3B6A57B2, 0x26508E6D, 0x1EA119FA, 0x3D4233DD, 0x2A1462B3}

func polymod(values []int) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1FFFFFF)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= generator[i]
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []int {
	out := make([]int, 0, len(hrp)*2+1)
	for _, c := range hrp {
		out = append(out, int(c)>>5)
	}
	out = append(out, 0)
	for _, c := range hrp {
		out = append(out, int(c)&31)
	}
	return out
}

func verifyChecksum(hrp string, data []int) bool {
	return polymod(append(hrpExpand(hrp), data...)) == 1
}

func createChecksum(hrp string, data []int) []int {
	values := append(hrpExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := polymod(values) ^ 1
	checksum := make([]int, checksumCharSize)
	for i := 0; i < checksumCharSize; i++ {
		checksum[i] = int((mod >> uint(5*(5-i))) & 31)
	}
	return checksum
}

func encodeBech32(hrp string, data []int) (string, error) {
	combined := append(append([]int{}, data...), createChecksum(hrp, data)...)
	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteString(separator)
	for _, d := range combined {
		if d < 0 || d >= len(charset) {
			return "", fmt.Errorf("address: invalid bech32 data value %d", d)
		}
		sb.WriteByte(charset[d])
	}
	return sb.String(), nil
}

func bech32Encode(hrp string, onChain, subaddress []byte) (string, error) {
	total := append(append([]byte{}, onChain...), subaddress...)
	converted, err := bech32.ConvertBits(total, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("address: convert bits: %w", err)
	}
	data := make([]int, 0, len(converted)+1)
	data = append(data, bech32Version)
	for _, b := range converted {
		data = append(data, int(b))
	}
	return encodeBech32(hrp, data)
}

func bech32Decode(encoded string) (hrp string, version int, onChain, subaddress []byte, err error) {
	if len(encoded) != totalEncodedLength {
		return "", 0, nil, nil, fmt.Errorf("address: bech32 string must be %d characters, got %d", totalEncodedLength, len(encoded))
	}
	if encoded != strings.ToLower(encoded) && encoded != strings.ToUpper(encoded) {
		return "", 0, nil, nil, fmt.Errorf("address: mixed-case bech32 addresses are not allowed")
	}
	lower := strings.ToLower(encoded)

	hrp = lower[:3]
	if hrp != string(Mainnet) && hrp != string(Testnet) {
		return "", 0, nil, nil, fmt.Errorf("address: unknown human readable part %q", hrp)
	}
	if lower[3:4] != separator {
		return "", 0, nil, nil, fmt.Errorf("address: unexpected bech32 separator %q", lower[3:4])
	}

	body := lower[4:]
	data := make([]int, len(body))
	for i, c := range body {
		idx := strings.IndexRune(charset, c)
		if idx < 0 {
			return "", 0, nil, nil, fmt.Errorf("address: invalid bech32 character %q", c)
		}
		data[i] = idx
	}

	version = data[0]
	if version != bech32Version {
		return "", 0, nil, nil, fmt.Errorf("address: version mismatch, expected %d got %d", bech32Version, version)
	}

	if !verifyChecksum(hrp, data) {
		return "", 0, nil, nil, fmt.Errorf("address: bech32 checksum validation failed")
	}

	payload := data[1 : len(data)-checksumCharSize]
	decoded := make([]byte, len(payload))
	for i, v := range payload {
		decoded[i] = byte(v)
	}
	raw, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return "", 0, nil, nil, fmt.Errorf("address: convert bits: %w", err)
	}
	if len(raw) != addressSize+subaddressSize {
		return "", 0, nil, nil, fmt.Errorf("address: expected %d decoded bytes, got %d", addressSize+subaddressSize, len(raw))
	}
	return hrp, version, raw[:addressSize], raw[addressSize:], nil
}
