package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the unbound account sentinel.
var ZeroAddress = common.Address{}

// ParseAddress accepts a 40-hex-digit account address with an optional 0x
// prefix. The zero address is rejected because it never names a real account.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	a := common.HexToAddress(s)
	if a == ZeroAddress {
		return common.Address{}, fmt.Errorf("%w: zero address", ErrInvalidAddress)
	}
	return a, nil
}

// IsZeroAddress reports whether a is the unbound sentinel.
func IsZeroAddress(a common.Address) bool { return a == ZeroAddress }
