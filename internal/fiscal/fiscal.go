// Package fiscal normalizes and validates company fiscal identifiers and bank accounts.
package fiscal

import (
	"context"
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

var ibanPattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)

// NormalizeFiscalCode strips everything but letters and digits and uppercases the rest.
// It is applied before validation and before storage.
func NormalizeFiscalCode(code string) string {
	return strings.ToUpper(nonAlphanumeric.ReplaceAllString(code, ""))
}

// NormalizeIBAN uppercases and removes whitespace.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}

// ValidIBAN checks the generic IBAN shape of an already normalized value.
func ValidIBAN(iban string) bool {
	return ibanPattern.MatchString(iban)
}

// Result is the outcome of a fiscal ID check.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Validator checks a fiscal ID against an external registry.
type Validator interface {
	Validate(ctx context.Context, taxID, countryCode string) (Result, error)
}

// SplitVATNumber removes a leading country prefix from a normalized fiscal code,
// e.g. RO12345678 → 12345678 for country RO.
func SplitVATNumber(code, countryCode string) string {
	countryCode = strings.ToUpper(countryCode)
	if countryCode == "GR" && strings.HasPrefix(code, "EL") {
		return code[2:]
	}
	if countryCode != "" && strings.HasPrefix(code, countryCode) {
		return code[len(countryCode):]
	}
	return code
}
