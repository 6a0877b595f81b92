package validator

import (
	"encoding/hex"
	"strings"

	govalidator "github.com/go-playground/validator/v10"
	"golang.org/x/crypto/sha3"
)

var standalone = govalidator.New(govalidator.WithRequiredStructEnabled())

// IsPayoutAddress reports whether addr is a 0x-prefixed 20-byte hex address.
// Mixed-case addresses must also carry a valid EIP-55 checksum.
func IsPayoutAddress(addr string) bool {
	if err := standalone.Var(addr, "required,eth_addr"); err != nil {
		return false
	}
	return validChecksum(addr[2:])
}

func validChecksum(digits string) bool {
	lower := strings.ToLower(digits)
	if digits == lower || digits == strings.ToUpper(digits) {
		return true
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	sum := hex.EncodeToString(h.Sum(nil))

	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c >= '0' && c <= '9' {
			continue
		}
		wantUpper := sum[i] >= '8'
		if wantUpper != (c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
