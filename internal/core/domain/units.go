package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

const etherDecimals = 18

// FormatEther renders a wei amount as a decimal ether string ("1.5", "0.0").
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, etherDecimals)
}

// FormatUnits renders an integer amount with the given number of decimals.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0.0"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)

	s := abs.String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		frac = "0"
	}
	out := whole + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

// ParseEther parses a decimal ether amount into wei.
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, etherDecimals)
}

// ParseUnits parses a non-negative decimal amount with at most decimals fractional digits.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("%w: more than %d decimals", ErrInvalidAmount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
		}
	}
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return n, nil
}

// WeiToEther converts wei to a float ether value for display and comparisons.
func WeiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return f
}
