package asset

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/smartwill/lastwill/internal/apperr"
)

// ParseAddress decodes a 0x-prefixed hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, apperr.ErrInvalidAddress
	}
	return common.HexToAddress(s), nil
}

// ParseAddresses decodes every element of ss.
func ParseAddresses(ss []string) ([]common.Address, error) {
	out := make([]common.Address, len(ss))
	for i, s := range ss {
		a, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// ParseAmount decodes a base-10 amount in the asset's smallest unit. The
// empty string is zero.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, apperr.ErrInvalidAmount
	}
	return v, nil
}

// ParseAmounts decodes every element of ss.
func ParseAmounts(ss []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(ss))
	for i, s := range ss {
		v, err := ParseAmount(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// FormatAmounts renders amounts as base-10 strings.
func FormatAmounts(vs []*uint256.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		if v == nil {
			out[i] = "0"
			continue
		}
		out[i] = v.Dec()
	}
	return out
}

// FormatAddresses renders addresses as checksummed hex.
func FormatAddresses(as []common.Address) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Hex()
	}
	return out
}
