// Package isbn validates and normalizes the 13-digit identifiers printed as
// EAN-13 barcodes on books.
package isbn

import "strings"

// Valid13 reports whether s is a 13-digit string whose last digit matches the
// ISBN-13 check digit computed over the first 12 digits (weights 1,3,1,3,...).
// Any other input, including non-ASCII digits, yields false.
func Valid13(s string) bool {
	if len(s) != 13 {
		return false
	}

	sum := 0
	for i := 0; i < 13; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		if i == 12 {
			break
		}
		d := int(c - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += d * 3
		}
	}

	return (10-sum%10)%10 == int(s[12]-'0')
}

// Valid10 reports whether s is a valid ISBN-10 (9 digits followed by a digit or 'X').
func Valid10(s string) bool {
	if len(s) != 10 {
		return false
	}

	sum := 0
	for i := 0; i < 10; i++ {
		c := s[i]
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case (c == 'X' || c == 'x') && i == 9:
			d = 10
		default:
			return false
		}
		sum += d * (10 - i)
	}
	return sum%11 == 0
}

// Normalize strips spaces and hyphens from manually entered identifiers.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// FromISBN10 converts a valid ISBN-10 to its 978-prefixed ISBN-13 form.
// Returns "" and false when s is not a valid ISBN-10.
func FromISBN10(s string) (string, bool) {
	if !Valid10(s) {
		return "", false
	}

	prefix := "978" + s[:9]
	sum := 0
	for i := 0; i < 12; i++ {
		d := int(prefix[i] - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += d * 3
		}
	}
	check := (10 - sum%10) % 10
	return prefix + string(rune('0'+check)), true
}

// Canonical turns manual input (hyphenated ISBN-13 or ISBN-10) into a valid
// ISBN-13. The scanner path never uses this; it only admits raw 13-digit values.
func Canonical(s string) (string, bool) {
	n := Normalize(s)
	if Valid13(n) {
		return n, true
	}
	return FromISBN10(n)
}
