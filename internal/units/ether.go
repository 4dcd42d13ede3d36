package units

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
)

// EtherDecimals is the number of wei decimals in one ether.
const EtherDecimals = 18

var decimalPattern = regexp.MustCompile(`^[0-9]*(\.[0-9]+)?$`)

// ParseEther converts a user supplied decimal ETH string ("0.01") into wei.
// Negative numbers, exponents and more than 18 fractional digits are rejected.
func ParseEther(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" || clean == "." || !decimalPattern.MatchString(clean) {
		return nil, clierr.New(clierr.CodeInvalidArguments, fmt.Sprintf("%q is not a valid ETH amount", v))
	}
	base, err := decimalToBaseUnits(clean, EtherDecimals)
	if err != nil {
		return nil, err
	}
	out, ok := new(big.Int).SetString(base, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeInvalidArguments, "invalid decimal amount")
	}
	return out, nil
}

// FormatEther renders wei with exactly places fractional digits, truncating
// the remainder.
func FormatEther(wei *big.Int, places int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	if places < 0 {
		places = 0
	}
	if places > EtherDecimals {
		places = EtherDecimals
	}
	neg := wei.Sign() < 0
	s := new(big.Int).Abs(wei).String()
	if len(s) <= EtherDecimals {
		s = strings.Repeat("0", EtherDecimals-len(s)+1) + s
	}
	intPart := s[:len(s)-EtherDecimals]
	fracPart := s[len(s)-EtherDecimals:][:places]
	out := intPart
	if places > 0 {
		out += "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}

// FormatEtherCompact renders wei without trailing fractional zeros.
func FormatEtherCompact(wei *big.Int) string {
	full := FormatEther(wei, EtherDecimals)
	if !strings.Contains(full, ".") {
		return full
	}
	full = strings.TrimRight(full, "0")
	return strings.TrimSuffix(full, ".")
}

func decimalToBaseUnits(decimal string, decimals int) (string, error) {
	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return "", clierr.New(clierr.CodeInvalidArguments, fmt.Sprintf("amount precision exceeds %d decimals", decimals))
	}
	fracPart = fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return "0", nil
	}
	return combined, nil
}
