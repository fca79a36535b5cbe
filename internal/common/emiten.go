package common

import (
	"strings"
)

// ExchangeIDX is the Indonesia Stock Exchange code
const ExchangeIDX = "IDX"

// Emiten represents an IDX listed issuer code.
// Format accepted: "BBCA", "bbca", "IDX:BBCA", "BBCA.JK"
type Emiten struct {
	// Code is the uppercase issuer code (e.g., "BBCA")
	Code string
	// Raw is the original input string
	Raw string
}

// ParseEmiten parses a ticker string into an Emiten.
// The code is uppercased; an "IDX:" prefix or ".JK" suffix (Yahoo style) is dropped.
func ParseEmiten(raw string) Emiten {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Emiten{Raw: raw}
	}

	code := strings.ToUpper(trimmed)
	if idx := strings.Index(code, ":"); idx > 0 && code[:idx] == ExchangeIDX {
		code = code[idx+1:]
	}
	code = strings.TrimSuffix(code, ".JK")

	return Emiten{
		Code: code,
		Raw:  raw,
	}
}

// IsEmpty reports whether no code was supplied
func (e Emiten) IsEmpty() bool {
	return e.Code == ""
}

// String returns the issuer code
func (e Emiten) String() string {
	return e.Code
}

// Qualified returns the exchange-qualified form (e.g., "IDX:BBCA")
func (e Emiten) Qualified() string {
	if e.Code == "" {
		return ""
	}
	return ExchangeIDX + ":" + e.Code
}
