package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseAmount parses a signed decimal or 0x-prefixed hex integer. Empty means zero.
func ParseAmount(input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		v, err := hexutil.DecodeBig(input)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", input, err)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", input)
	}
	return v, nil
}

// ParseNonNegative is ParseAmount restricted to values >= 0.
func ParseNonNegative(input string) (*big.Int, error) {
	v, err := ParseAmount(input)
	if err != nil {
		return nil, err
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", input)
	}
	return v, nil
}
