package registry

import "strings"

// Document numbers are compared digits-only; plates and state codes
// uppercased without separators. The same normalization runs on create,
// update and lookup so duplicate detection never misses.

// Digits strips everything but 0-9 (CPF/CNPJ/IE punctuation, CEP dashes).
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Placa uppercases and drops separators from a vehicle plate.
func Placa(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UF uppercases a two-letter state code.
func UF(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
