package util

import (
	"math"
	"regexp"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

// NormalizeDigits strips everything but digits. Used for phone numbers,
// business IDs and barcodes as printed on invoices.
func NormalizeDigits(input string) string {
	out := strings.Builder{}
	for _, r := range input {
		if r >= '0' && r <= '9' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// NormalizeName lowercases and collapses whitespace for exact name lookups.
func NormalizeName(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	return reSpaces.ReplaceAllString(s, " ")
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// EmailDomain returns the part after the last '@', or "" for non-addresses.
func EmailDomain(email string) string {
	idx := strings.LastIndex(email, "@")
	if idx < 0 || idx == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[idx+1:])
}

// Round4 rounds to 4 decimal places, the precision net unit prices carry.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Round2 rounds to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }
