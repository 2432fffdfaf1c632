package service

import "github.com/shopspring/decimal"

// Base price in currency units for one rewrite order
var basePrice = decimal.NewFromInt(299)

// Words beyond this count incur a per-word surcharge
const surchargeThreshold = 10000

var perWordSurcharge = decimal.NewFromFloat(0.01)

var serviceTypeMultipliers = map[string]decimal.Decimal{
	"academic":  decimal.NewFromFloat(1.2),
	"business":  decimal.NewFromFloat(1.1),
	"technical": decimal.NewFromFloat(1.3),
	"creative":  decimal.NewFromFloat(1.0),
}

var urgencyMultipliers = map[string]decimal.Decimal{
	"rush":     decimal.NewFromFloat(2.0),
	"standard": decimal.NewFromFloat(1.0),
	"economy":  decimal.NewFromFloat(0.8),
}

// CalculatePrice computes the deterministic order total: base price plus a
// per-word surcharge beyond the threshold, scaled by service-type and
// urgency multipliers, rounded to 2 decimal places. Unknown service types
// and urgencies price at multiplier 1.0.
func CalculatePrice(wordCount int, serviceType, urgency string) decimal.Decimal {
	total := basePrice
	if wordCount > surchargeThreshold {
		extra := decimal.NewFromInt(int64(wordCount - surchargeThreshold))
		total = total.Add(extra.Mul(perWordSurcharge))
	}

	if mult, ok := serviceTypeMultipliers[serviceType]; ok {
		total = total.Mul(mult)
	}
	if mult, ok := urgencyMultipliers[urgency]; ok {
		total = total.Mul(mult)
	}

	return total.Round(2)
}
