// Package momo maps Ghanaian mobile numbers to mobile-money providers.
//
// This is the only prefix table in the codebase. Payment initiation, the
// commission distributor and affiliate withdrawals all resolve through it.
package momo

import (
	"errors"
	"fmt"
	"strings"
)

// TableVersion identifies the prefix table below. Bump it whenever a prefix
// moves between providers so payouts can be traced to the table in force.
const TableVersion = "gh-2024.1"

var (
	ErrInvalidNumber     = errors.New("invalid mobile money number")
	ErrUnsupportedPrefix = errors.New("unsupported phone prefix for mobile money")
)

// Provider is a mobile-money operator. BankCode is what the processor expects
// on transfer recipients, ChargeCode what it expects on mobile-money charges.
type Provider struct {
	Name       string
	BankCode   string
	ChargeCode string
}

var (
	MTN        = Provider{Name: "MTN Mobile Money", BankCode: "MTN", ChargeCode: "mtn"}
	Telecel    = Provider{Name: "Telecel Cash", BankCode: "VOD", ChargeCode: "vod"}
	AirtelTigo = Provider{Name: "AirtelTigo Money", BankCode: "ATL", ChargeCode: "atl"}
)

var prefixes = map[string]Provider{
	"024": MTN,
	"025": MTN,
	"053": MTN,
	"054": MTN,
	"055": MTN,
	"059": MTN,

	"020": Telecel,
	"050": Telecel,

	"026": AirtelTigo,
	"027": AirtelTigo,
	"056": AirtelTigo,
	"057": AirtelTigo,
}

// Route is a resolved payout destination.
type Route struct {
	Provider     Provider
	LocalNumber  string // ten digits, leading zero
	TableVersion string
}

// Normalize turns "+233 24 123 4567", "233241234567" or "024-123-4567" into
// the local form "0241234567".
func Normalize(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidNumber, phone)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "233") && len(digits) == 12:
		digits = "0" + digits[3:]
	case len(digits) == 9 && !strings.HasPrefix(digits, "0"):
		digits = "0" + digits
	}

	if len(digits) != 10 || digits[0] != '0' {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, phone)
	}
	return digits, nil
}

// Resolve normalises phone and looks up its provider.
func Resolve(phone string) (Route, error) {
	local, err := Normalize(phone)
	if err != nil {
		return Route{}, err
	}
	provider, ok := prefixes[local[:3]]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrUnsupportedPrefix, local[:3])
	}
	return Route{Provider: provider, LocalNumber: local, TableVersion: TableVersion}, nil
}
