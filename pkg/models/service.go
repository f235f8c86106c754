package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CanonicalService is the authoritative record for one product.
// Catalog documents hold denormalized copies of its display fields.
type CanonicalService struct {
	CanonicalRef string      `json:"canonical_ref"` // stable, assigned at creation, never reused
	LegacyID     int         `json:"legacy_id"`     // historical primary key, unique per language only
	Language     string      `json:"language"`
	DisplayName  string      `json:"display_name"`
	IconURL      string      `json:"icon_url,omitempty"`
	PricingPlan  PricingPlan `json:"pricing_plan"`
	Active       bool        `json:"active"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// PricingPlan is built by the product workflow (duration x seats).
// The engine only reads the cheapest option out of it.
type PricingPlan struct {
	Currency string        `json:"currency,omitempty"`
	Options  []PriceOption `json:"options"`
}

type PriceOption struct {
	DurationMonths int    `json:"duration_months"`
	Seats          int    `json:"seats"`
	Price          string `json:"price"` // decimal string, e.g. "7.99"
}

var decimalPrice = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// IsDecimalPrice reports whether s is a plain non-negative decimal such as
// "7" or "7.99". Signs, exponents, hex floats, NaN and Inf are rejected.
func IsDecimalPrice(s string) bool {
	return decimalPrice.MatchString(s)
}

// MinPrice returns the lowest option price exactly as it is stored in the
// plan, or "" when no option carries a plain decimal price.
func (p PricingPlan) MinPrice() string {
	best := ""
	var bestVal float64
	for _, o := range p.Options {
		s := strings.TrimSpace(o.Price)
		if !IsDecimalPrice(s) {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		if best == "" || v < bestVal {
			best, bestVal = s, v
		}
	}
	return best
}
