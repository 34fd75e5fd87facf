package core

import (
	"github.com/shopspring/decimal"

	"almazara/pkg/domain"
)

// Quantities are kept to two decimals (ten grams); decimal arithmetic keeps
// repeated additions and proportional splits from drifting.
const kgPlaces = 2

func kg(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func toKg(d decimal.Decimal) float64 {
	f, _ := d.Round(kgPlaces).Float64()
	return f
}

func addKg(a, b float64) float64 { return toKg(kg(a).Add(kg(b))) }

func subKg(a, b float64) float64 { return toKg(kg(a).Sub(kg(b))) }

// expectedOil is the theoretical oil of a delivery given its fat yield in percent.
func expectedOil(slip domain.DeliverySlip) decimal.Decimal {
	return kg(slip.NetKg).Mul(kg(slip.Analysis.FatYield)).Div(decimal.NewFromInt(100))
}

// splitByShare divides total across weights proportionally. The last share
// absorbs the rounding remainder so the parts always add up to total.
func splitByShare(total decimal.Decimal, weights []decimal.Decimal) []float64 {
	out := make([]float64, len(weights))
	if len(weights) == 0 {
		return out
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	if sum.IsZero() {
		weights = make([]decimal.Decimal, len(out))
		for i := range weights {
			weights[i] = decimal.NewFromInt(1)
		}
		sum = decimal.NewFromInt(int64(len(weights)))
	}
	total = total.Round(kgPlaces)
	assigned := decimal.Zero
	for i, w := range weights {
		if i == len(weights)-1 {
			out[i] = toKg(total.Sub(assigned))
			break
		}
		part := total.Mul(w).Div(sum).Round(kgPlaces)
		assigned = assigned.Add(part)
		out[i] = toKg(part)
	}
	return out
}

func tankStatus(t domain.Tank) domain.TankStatus {
	switch {
	case t.CurrentKg <= 0:
		return domain.TankEmpty
	case t.CapacityKg > 0 && t.CurrentKg >= t.CapacityKg:
		return domain.TankFull
	default:
		return domain.TankFilling
	}
}

func dateOr(d domain.Date, tx Transaction) domain.Date {
	if d.IsZero() {
		return domain.DateOf(tx.Now())
	}
	return d
}
