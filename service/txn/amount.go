package txn

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Precision is the number of decimal places in a base unit.
	Precision = 8
	// UnitFactor converts whole coins to base units.
	UnitFactor = 100000000
)

// ParseAmount converts a decimal string such as "1.5" into base units.
// Digits past the eighth decimal place are truncated.
func ParseAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount is empty")
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Precision {
		frac = frac[:Precision]
	}
	frac += strings.Repeat("0", Precision-len(frac))

	if strings.ContainsAny(whole+frac, "+-") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	v, err := strconv.ParseUint(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// FormatAmount renders base units as a decimal string without trailing zeros.
func FormatAmount(v uint64) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(v/UnitFactor, 10))
	if rem := v % UnitFactor; rem > 0 {
		sb.WriteByte('.')
		s := strconv.FormatUint(rem, 10)
		sb.WriteString(strings.Repeat("0", Precision-len(s)))
		sb.WriteString(strings.TrimRight(s, "0"))
	}
	return sb.String()
}
