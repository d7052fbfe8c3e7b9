// Package pricing turns a model volume and manufacturing parameters into a
// price breakdown.
//
// Arithmetic is decimal. Weight is rounded to 2 places and every monetary
// value to 4, half away from zero; unit cost and price per unit are sums of
// already rounded parts so the breakdown always adds up.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	weightPlaces = 2
	moneyPlaces  = 4
)

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
	one      = decimal.NewFromInt(1)
)

// Result is a computed price breakdown. Weight is in grams; every other value
// is in the base currency.
type Result struct {
	Weight       float64 `json:"weight"`
	MaterialCost float64 `json:"material_cost"`
	EnergyCost   float64 `json:"energy_cost"`
	Depreciation float64 `json:"depreciation"`
	PrepCost     float64 `json:"prep_cost"`
	RejectCost   float64 `json:"reject_cost"`
	UnitCost     float64 `json:"unit_cost"`
	Profit       float64 `json:"profit"`
	Tax          float64 `json:"tax"`
	PricePerUnit float64 `json:"price_per_unit"`
	TotalPrice   float64 `json:"total_price"`
}

// EffectiveVolume returns the printed material volume in cm³. FDM prints the
// infill fraction of the solid plus supports; resin and metal print solid
// parts plus supports.
func EffectiveVolume(volumeCM3 float64, p Params) decimal.Decimal {
	v := decimal.NewFromFloat(volumeCM3)
	support := decimal.NewFromFloat(p.SupportPercent).Div(hundred)
	if p.Technology == TechnologyFDM {
		infill := decimal.NewFromFloat(p.Infill).Div(hundred)
		return v.Mul(infill.Add(support))
	}
	return v.Mul(one.Add(support))
}

// Calculate computes the breakdown for one model. It is deterministic and
// has no side effects. Parameters are validated first; a *ValidationError
// is returned when they or the volume are out of range.
func Calculate(volumeCM3 float64, p Params) (*Result, error) {
	if math.IsNaN(volumeCM3) || math.IsInf(volumeCM3, 0) || volumeCM3 <= 0 {
		return nil, &ValidationError{Fields: []FieldError{{Field: "volume", Message: "must be a positive number"}}}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	weight := EffectiveVolume(volumeCM3, p).
		Mul(decimal.NewFromFloat(p.MaterialDensity)).
		Mul(decimal.NewFromFloat(p.WasteFactor))

	printTime := decimal.NewFromFloat(p.PrintTimeH)
	labour := decimal.NewFromFloat(p.PostProcessTimeH).Add(decimal.NewFromFloat(p.ModelingTimeH))

	material := money(weight.Div(thousand).Mul(decimal.NewFromFloat(p.MaterialPrice)))
	energy := money(printTime.Mul(decimal.NewFromFloat(p.EnergyRate)))
	depreciation := money(printTime.Mul(decimal.NewFromFloat(p.DepreciationRate)))
	prep := money(labour.Mul(decimal.NewFromFloat(p.HourlyRate)))

	base := material.Add(energy).Add(depreciation).Add(prep)

	reject := decimal.Zero
	rate := decimal.NewFromFloat(p.RejectRate)
	if denom := one.Sub(rate); denom.IsPositive() {
		reject = money(base.Mul(rate).Div(denom))
	}

	unit := base.Add(reject)
	profit := money(unit.Mul(decimal.NewFromFloat(p.Markup).Sub(one)))
	tax := money(unit.Add(profit).Mul(decimal.NewFromFloat(p.TaxRate)))
	ppu := unit.Add(profit).Add(tax)
	total := ppu.Mul(decimal.NewFromInt(int64(p.Quantity)))

	return &Result{
		Weight:       weight.Round(weightPlaces).InexactFloat64(),
		MaterialCost: material.InexactFloat64(),
		EnergyCost:   energy.InexactFloat64(),
		Depreciation: depreciation.InexactFloat64(),
		PrepCost:     prep.InexactFloat64(),
		RejectCost:   reject.InexactFloat64(),
		UnitCost:     unit.InexactFloat64(),
		Profit:       profit.InexactFloat64(),
		Tax:          tax.InexactFloat64(),
		PricePerUnit: ppu.InexactFloat64(),
		TotalPrice:   total.InexactFloat64(),
	}, nil
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}
