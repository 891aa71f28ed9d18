// Package pricing computes town unit prices from supply pressure.
package pricing

import "math"

// Curve bounds how far supply pressure may move a price.
type Curve struct {
	// Elasticity scales the adjustment per unit of shortage or surplus relative to ideal stock.
	Elasticity float64 `yaml:"price_elasticity"`
	// MinMultiplier and MaxMultiplier clamp the result to [base*Min, base*Max].
	MinMultiplier float64 `yaml:"min_price_multiplier"`
	MaxMultiplier float64 `yaml:"max_price_multiplier"`
}

// UnitPrice returns the price of one unit.
//
// baseValue is the good's catalog value and sideMultiplier the town's buy or sell
// multiplier. When ideal > 0 the price is scaled by 1 + (1 - stock/ideal) * Elasticity,
// so shortage raises the price and surplus lowers it. ideal <= 0 means the town
// has no demand for the good and stock is ignored.
//
// Precondition: baseValue > 0; stock >= 0; c.MinMultiplier <= c.MaxMultiplier.
// Postcondition: baseValue*c.MinMultiplier <= result <= baseValue*c.MaxMultiplier.
func UnitPrice(baseValue, sideMultiplier float64, stock, ideal int, c Curve) float64 {
	price := baseValue * sideMultiplier
	if ideal > 0 {
		supplyRatio := float64(stock) / float64(ideal)
		price *= 1 + (1-supplyRatio)*c.Elasticity
	}
	return clamp(price, baseValue*c.MinMultiplier, baseValue*c.MaxMultiplier)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
