package catalog

import (
	"errors"
	"strings"

	"tokokasir/terminal/internal/domain"
)

var ErrNoMatch = errors.New("no matching variant")

// Resolve maps one scan token onto the catalog snapshot. Tiers, first hit
// wins: exact equality against barcode or SKU, then case-insensitive
// equality, then both again with a single leading zero restored (some
// scanner firmware strips it from numeric codes). The returned variant is
// a copy.
func Resolve(token string, variants []domain.Variant) (*domain.Variant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoMatch
	}

	for _, candidate := range []string{token, "0" + token} {
		if v, ok := matchExact(candidate, variants); ok {
			return v, nil
		}
		if v, ok := matchFold(candidate, variants); ok {
			return v, nil
		}
	}

	return nil, ErrNoMatch
}

func matchExact(token string, variants []domain.Variant) (*domain.Variant, bool) {
	for i := range variants {
		if variants[i].Barcode == token || variants[i].SKU == token {
			dup := variants[i]
			return &dup, true
		}
	}
	return nil, false
}

func matchFold(token string, variants []domain.Variant) (*domain.Variant, bool) {
	for i := range variants {
		if strings.EqualFold(variants[i].Barcode, token) || strings.EqualFold(variants[i].SKU, token) {
			dup := variants[i]
			return &dup, true
		}
	}
	return nil, false
}
