package model

import "strings"

// OnlyDigits strips everything but ASCII digits
func OnlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsCPF reports whether the tax id has the 11 digits of an individual's CPF
func IsCPF(taxID string) bool {
	return len(OnlyDigits(taxID)) == 11
}

// IsCNPJ reports whether the tax id has the 14 digits of a company's CNPJ
func IsCNPJ(taxID string) bool {
	return len(OnlyDigits(taxID)) == 14
}

// ZeroFill left-pads s with zeros up to n characters
func ZeroFill(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}
