package numeric

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress rejects anything that does not parse as an H160.
var ErrInvalidAddress = errors.New("invalid address format")

// ParseAddress parses a hex string into an EVM address, accepting both
// checksummed and lowercase forms. It rejects strings that aren't valid
// 20-byte hex addresses instead of silently truncating or padding them.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, ErrInvalidAddress
	}
	return common.HexToAddress(s), nil
}

// Normalize parses and re-renders an address in EIP-55 checksum form, the
// canonical representation used as a map key throughout the ledger and
// subscription store.
func Normalize(s string) (string, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}
