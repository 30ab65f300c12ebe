package format

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

const (
	GweiDecimals  = 9
	EtherDecimals = 18

	gweiPlaces  = 3
	etherPlaces = 4
)

// FormatError reports a quantity that is not a base-16 number.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed hex quantity %q: %s", e.Input, e.Reason)
}

// HexToBig decodes a hex quantity such as "0x3B9ACA00". The 0x prefix is optional.
func HexToBig(h string) (*big.Int, error) {
	s := strings.TrimSpace(h)
	if s == "" {
		return nil, &FormatError{Input: h, Reason: "empty"}
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if s == "" {
		return nil, &FormatError{Input: h, Reason: "no digits"}
	}
	if s[0] == '+' || s[0] == '-' {
		return nil, &FormatError{Input: h, Reason: "signed"}
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, &FormatError{Input: h, Reason: "not base 16"}
	}
	return v, nil
}

// HexToUint64 decodes a hex quantity that must fit in 64 bits, e.g. a block number.
func HexToUint64(h string) (uint64, error) {
	v, err := HexToBig(h)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, &FormatError{Input: h, Reason: "overflows uint64"}
	}
	return v.Uint64(), nil
}

// ToHex encodes v as a canonical hex quantity.
func ToHex(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(v)
}

// FormatGwei renders a wei quantity in gwei with 3 fractional digits.
func FormatGwei(h string) (string, error) {
	return scale(h, GweiDecimals, gweiPlaces)
}

// FormatEther renders a wei quantity in ether with 4 fractional digits.
func FormatEther(h string) (string, error) {
	return scale(h, EtherDecimals, etherPlaces)
}

func scale(h string, decimals, places int) (string, error) {
	v, err := HexToBig(h)
	if err != nil {
		return "", err
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).StringFixed(int32(places)), nil
}
