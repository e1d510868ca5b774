package saleform

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmountText turns a free-typed amount such as "$1,500.5" into its value
// and its display form ("1,500.5"). Text with no digits parses as zero.
func ParseAmountText(raw string) (decimal.Decimal, string) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return decimal.Zero, ""
	}

	parts := strings.Split(clean, ".")
	integerPart := parts[0]
	decimalPart := ""
	if len(parts) > 1 {
		decimalPart = parts[1]
	}

	display := groupThousands(integerPart)
	if decimalPart != "" {
		display += "." + decimalPart
	}

	numeric := integerPart
	if numeric == "" {
		numeric = "0"
	}
	if decimalPart != "" {
		numeric += "." + decimalPart
	}
	value, err := decimal.NewFromString(numeric)
	if err != nil {
		return decimal.Zero, display
	}
	return value, display
}

// FormatAmount renders a value the way ParseAmountText displays it.
func FormatAmount(value decimal.Decimal) string {
	_, display := ParseAmountText(value.String())
	return display
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	b.Grow(len(digits) + len(digits)/3)
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
