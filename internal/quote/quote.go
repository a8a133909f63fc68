// Package quote computes shipping quotes.
//
// The tariff model is deliberately simple: a per-kilogram base rate
// adjusted by package type and route, an insurance charge assuming a
// declared value of 500 per kilogram, and 16% IVA on top. All monetary
// amounts are rounded half-up to centavos.
package quote

import (
	"fmt"
	"math"
	"strings"
)

const (
	// baseRate is the cost per kilogram before multipliers.
	baseRate = 50.0

	// declaredValuePerKg is the assumed declared value used for insurance.
	declaredValuePerKg = 500.0

	// insuranceRate is the insurance charge as a fraction of declared value.
	insuranceRate = 0.02

	// taxRate is IVA.
	taxRate = 0.16

	// urgentMultiplier applies to expedited shipments.
	urgentMultiplier = 1.5

	// remoteMultiplier applies when either endpoint is outside the
	// major-city network.
	remoteMultiplier = 1.3
)

// majorCities are the hubs with direct routes. Routes between two hubs
// get the base distance multiplier; anything else pays the remote rate.
var majorCities = []string{
	"Ciudad de México",
	"Guadalajara",
	"Monterrey",
	"Puebla",
	"Tijuana",
}

// typeMultipliers maps package type to its rate multiplier.
// Unrecognized types fall back to 1.0.
var typeMultipliers = map[string]float64{
	"documento": 0.8,
	"paquete":   1.0,
	"caja":      1.2,
}

// Input are the parameters of a quote request.
type Input struct {
	Weight          float64 // kilograms
	OriginCity      string
	DestinationCity string
	PackageType     string // documento, paquete, caja
	Urgent          bool
}

// Breakdown is the monetary decomposition of a quote.
type Breakdown struct {
	BaseCost  float64 `json:"baseCost"`
	Insurance float64 `json:"insurance"`
	Subtotal  float64 `json:"subtotal"`
	Tax       float64 `json:"tax"`
	Total     float64 `json:"total"`
}

// Details echoes the request parameters plus the delivery estimate.
type Details struct {
	Weight        float64 `json:"weight"`
	Route         string  `json:"route"`
	PackageType   string  `json:"packageType"`
	Urgent        bool    `json:"urgent"`
	EstimatedDays string  `json:"estimatedDays"`
}

// Quote is a complete quote: money plus delivery details.
type Quote struct {
	Breakdown Breakdown `json:"breakdown"`
	Details   Details   `json:"details"`
}

// IsMajorCity reports whether city is one of the network hubs.
// Matching is case-insensitive.
func IsMajorCity(city string) bool {
	for _, c := range majorCities {
		if strings.EqualFold(strings.TrimSpace(city), c) {
			return true
		}
	}
	return false
}

// round2 rounds half-up to two decimal places.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Calculate computes a quote. It is a pure function: same input, same
// quote.
func Calculate(in Input) Quote {
	typeMult, ok := typeMultipliers[strings.ToLower(strings.TrimSpace(in.PackageType))]
	if !ok {
		typeMult = 1.0
	}

	majorRoute := IsMajorCity(in.OriginCity) && IsMajorCity(in.DestinationCity)
	distMult := remoteMultiplier
	if majorRoute {
		distMult = 1.0
	}

	cost := baseRate * in.Weight * typeMult * distMult
	if in.Urgent {
		cost *= urgentMultiplier
	}

	insurance := in.Weight * declaredValuePerKg * insuranceRate
	subtotal := cost + insurance
	tax := subtotal * taxRate

	days := "3-5 días"
	switch {
	case in.Urgent:
		days = "1 día"
	case majorRoute:
		days = "2-3 días"
	}

	return Quote{
		Breakdown: Breakdown{
			BaseCost:  round2(cost),
			Insurance: round2(insurance),
			Subtotal:  round2(subtotal),
			Tax:       round2(tax),
			Total:     round2(subtotal + tax),
		},
		Details: Details{
			Weight:        in.Weight,
			Route:         fmt.Sprintf("%s → %s", in.OriginCity, in.DestinationCity),
			PackageType:   in.PackageType,
			Urgent:        in.Urgent,
			EstimatedDays: days,
		},
	}
}
