package roles

import (
	"github.com/ethereum/go-ethereum/common"

	"xdao.co/taskledger/ledger"
)

// NoAccount is rendered for the zero-address sentinel.
const NoAccount = "N/A"

// FormatAccount renders a checksummed address, or NoAccount for the zero
// address.
func FormatAccount(a common.Address) string {
	if ledger.IsZeroAddress(a) {
		return NoAccount
	}
	return a.Hex()
}

// ShortAccount renders 0x1234...abcd, or NoAccount for the zero address.
func ShortAccount(a common.Address) string {
	if ledger.IsZeroAddress(a) {
		return NoAccount
	}
	h := a.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}
