package mapfile

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseNumber converts a mapfile integer literal. Literals follow C integer
// notation: a 0x prefix selects hexadecimal, any other leading zero selects
// octal, everything else is decimal. The result is not bounded to 64 bits.
func ParseNumber(token string) (*big.Int, error) {
	digits, base := token, 10
	switch {
	case strings.HasPrefix(token, "0x"):
		digits, base = token[2:], 16
	case strings.HasPrefix(token, "0"):
		base = 8
	}

	if digits == "" {
		return nil, fmt.Errorf("no digits in %q", token)
	}
	for _, r := range digits {
		if !isDigit(r, base) {
			return nil, fmt.Errorf("invalid base %d digit %q in %q", base, r, token)
		}
	}

	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid base %d number %q", base, token)
	}
	return n, nil
}

func isDigit(r rune, base int) bool {
	switch {
	case r >= '0' && r <= '7':
		return true
	case r == '8' || r == '9':
		return base >= 10
	case (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F'):
		return base == 16
	}
	return false
}
