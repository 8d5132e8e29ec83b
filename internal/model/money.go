package model

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned when a string cannot be parsed as money.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount is a signed amount of money in cents.
//
// Amounts are never represented as floats so they can take part in
// canonical hashing without precision drift.
type Amount int64

// Cents returns the raw number of cents.
func (a Amount) Cents() int64 {
	return int64(a)
}

// String renders the amount as dollars, e.g. "$1,234.56" or "-$12.50".
func (a Amount) String() string {
	cents := int64(a)
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)
	frac := cents % 100

	// Group thousands
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	fracStr := strconv.FormatInt(frac, 10)
	if frac < 10 {
		fracStr = "0" + fracStr
	}
	return sign + "$" + b.String() + "." + fracStr
}

// Abs returns the absolute value of the amount.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// ParseAmount converts a decimal string to an Amount with half-up rounding.
//
// It accepts dot (12.34) and comma (12,34) decimal separators, an optional
// leading sign and an optional leading "$". Comma thousands separators are
// accepted only together with a dot decimal ("$1,234.56", the String form);
// "1,234" alone reads as 1.234. Only ASCII digits are accepted. Digits beyond the second decimal
// place are rounded half-up on the third decimal.
//
// Examples:
//
//	ParseAmount("250.00")  -> 25000, nil
//	ParseAmount("-12,5")   -> -1250, nil
//	ParseAmount("$12.345") -> 1235, nil
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "$")
	if dot := strings.IndexByte(s, '.'); dot >= 0 && strings.Contains(s, ",") {
		// Thousands separators, as rendered by String.
		if strings.LastIndexByte(s, ',') > dot || !validGroups(s[:dot]) {
			return 0, ErrInvalidAmount
		}
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	if s == "" {
		return 0, ErrInvalidAmount
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	if !asciiDigits(intPart) || !asciiDigits(fracPart) {
		return 0, ErrInvalidAmount
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafe = (1<<63 - 1) / 100
	if iv >= maxSafe {
		return 0, ErrInvalidAmount
	}

	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}

	cents := iv*100 + fracCents
	if negative {
		cents = -cents
	}
	return Amount(cents), nil
}

func asciiDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// validGroups reports whether whole is "1", "12", "123", "1,234", "12,345,678"...
func validGroups(whole string) bool {
	groups := strings.Split(whole, ",")
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// MustParseAmount is like ParseAmount but panics on error.
// Use only in tests or with literal inputs.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}
