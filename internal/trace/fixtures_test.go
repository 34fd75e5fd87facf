package trace

import (
	"time"

	"almazara/pkg/domain"
)

func date(y, m, d int) domain.Date {
	return domain.NewDate(y, time.Month(m), d)
}

// scenario is the reference mill history: producer P1 delivers slip 7, milled
// as MT1/1 into tank 3, closed as LP-150126, moved to the nurse tank as batch
// 3/1/2026 and bottled as 3/1/1/2026.
func scenario() domain.Snapshot {
	return domain.Snapshot{
		Version:   12,
		Producers: []domain.Producer{{ID: "P1", Name: "Cortijo El Olivar"}},
		Customers: []domain.Customer{
			{ID: "C1", Name: "Ultramarinos Sur", Type: domain.CustomerRetail},
			{ID: "C2", Name: "Aceites a Granel SL", Type: domain.CustomerWholesale},
		},
		DeliverySlips: []domain.DeliverySlip{{
			ID: 7, Date: date(2026, 1, 14), ProducerID: "P1", Variety: "Picual", NetKg: 500,
			Analysis: domain.LabAnalysis{FatYield: 18.5, Acidity: 0.2},
			Type:     domain.SlipMilling, Status: domain.SlipMilled, HopperID: 1, MillingLotID: "MT1/1",
		}},
		MillingLots: []domain.MillingLot{{
			ID: "MT1/1", HopperID: 1, UseCounter: 1, Date: date(2026, 1, 14),
			InputKg: 500, ExpectedOilKg: 92.5, ActualOilKg: 92.5, TankID: 3, Variety: "Picual", SlipIDs: []int{7},
		}},
		ProductionLots: []domain.ProductionLot{{
			ID: "LP-150126", Date: date(2026, 1, 15), MillingLotIDs: []string{"MT1/1"},
			OliveKg: 500, OilKg: 92.5, TankID: 3,
		}},
		Tanks: []domain.Tank{{ID: 3, CapacityKg: 20000, CurrentKg: 0, Variety: "Picual", Status: domain.TankEmpty}},
		Movements: []domain.OilMovement{{
			ID: "mv-1", Date: date(2026, 1, 20), Source: domain.TankEndpoint(3), Target: domain.NurseTankEndpoint(),
			Kg: 92.5, BatchID: "3/1/2026",
		}},
		PackagingLots: []domain.PackagingLot{{
			ID: "3/1/1/2026", Date: date(2026, 1, 21), Format: "0.75L", Units: 150,
			Type: domain.PackagingFiltered, SourceInfo: "Nodriza Lote 3/1/2026", Kg: 92.5,
		}},
		SalesOrders: []domain.SalesOrder{{
			ID: "SO-1", CustomerID: "C1", Date: date(2026, 2, 1),
			Lines: []domain.SalesLine{{PackagingLotID: "3/1/1/2026", Units: 24, Price: 9.5}},
		}},
	}
}
