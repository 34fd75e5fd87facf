package core

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"almazara/pkg/domain"
	"almazara/pkg/lotid"
)

// RegisterProducer persists a new olive grower.
func (s *Service) RegisterProducer(ctx context.Context, producer domain.Producer) (domain.Producer, Result, error) {
	var created domain.Producer
	res, err := s.run(ctx, "register_producer", func(tx Transaction) (string, error) {
		producer.Name = strings.TrimSpace(producer.Name)
		if producer.Name == "" {
			return producer.ID, invalid("producer name required")
		}
		var err error
		created, err = tx.CreateProducer(producer)
		return created.ID, err
	})
	return created, res, err
}

// RegisterCustomer persists a new buyer. An empty type defaults to wholesale.
func (s *Service) RegisterCustomer(ctx context.Context, customer domain.Customer) (domain.Customer, Result, error) {
	var created domain.Customer
	res, err := s.run(ctx, "register_customer", func(tx Transaction) (string, error) {
		customer.Name = strings.TrimSpace(customer.Name)
		if customer.Name == "" {
			return customer.ID, invalid("customer name required")
		}
		switch customer.Type {
		case "":
			customer.Type = domain.CustomerWholesale
		case domain.CustomerWholesale, domain.CustomerRetail, domain.CustomerOliveBuyer, domain.CustomerPomaceBuyer:
		default:
			return customer.ID, invalid("unknown customer type %q", customer.Type)
		}
		var err error
		created, err = tx.CreateCustomer(customer)
		return created.ID, err
	})
	return created, res, err
}

// RegisterTank persists a cellar tank.
func (s *Service) RegisterTank(ctx context.Context, tank domain.Tank) (domain.Tank, Result, error) {
	var created domain.Tank
	res, err := s.run(ctx, "register_tank", func(tx Transaction) (string, error) {
		id := strconv.Itoa(tank.ID)
		if tank.ID <= 0 {
			return id, invalid("tank id must be positive")
		}
		if tank.CapacityKg <= 0 {
			return id, invalid("tank %d capacity must be positive", tank.ID)
		}
		if tank.CurrentKg < 0 {
			return id, invalid("tank %d content cannot be negative", tank.ID)
		}
		tank.Status = tankStatus(tank)
		var err error
		created, err = tx.CreateTank(tank)
		return id, err
	})
	return created, res, err
}

// RecordDelivery registers an olive delivery. Milling deliveries wait in
// their hopper as PENDING; direct sales are closed immediately and never
// enter the milling chain.
func (s *Service) RecordDelivery(ctx context.Context, slip domain.DeliverySlip) (domain.DeliverySlip, Result, error) {
	var created domain.DeliverySlip
	res, err := s.run(ctx, "record_delivery", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindProducer(slip.ProducerID); !ok {
			return "", ErrNotFound{Entity: EntityProducer, ID: slip.ProducerID}
		}
		if slip.NetKg <= 0 {
			return "", invalid("net kg must be positive")
		}
		if slip.Analysis.FatYield < 0 || slip.Analysis.FatYield > 100 {
			return "", invalid("fat yield %.2f out of range", slip.Analysis.FatYield)
		}
		slip.Date = dateOr(slip.Date, tx)
		slip.MillingLotID = ""
		switch slip.Type {
		case "", domain.SlipMilling:
			if slip.HopperID <= 0 {
				return "", invalid("milling delivery requires a hopper")
			}
			slip.Type = domain.SlipMilling
			slip.Status = domain.SlipPending
			slip.BuyerID, slip.BuyerName = "", ""
		case domain.SlipDirectSale:
			slip.BuyerName = strings.TrimSpace(slip.BuyerName)
			if slip.BuyerID == "" && slip.BuyerName == "" {
				return "", invalid("direct sale requires a buyer")
			}
			if slip.BuyerID != "" {
				if _, ok := view.FindCustomer(slip.BuyerID); !ok {
					return "", ErrNotFound{Entity: EntityCustomer, ID: slip.BuyerID}
				}
			}
			slip.Status = domain.SlipSoldDirect
			slip.HopperID = 0
		default:
			return "", invalid("unknown slip type %q", slip.Type)
		}
		var err error
		created, err = tx.CreateDeliverySlip(slip)
		return strconv.Itoa(created.ID), err
	})
	return created, res, err
}

// HopperClosure describes the closing of a hopper into a milling lot.
type HopperClosure struct {
	HopperID int         `json:"hopper_id"`
	TankID   int         `json:"tank_id"`
	Date     domain.Date `json:"date"`
	// Counter is the hopper use counter; 0 selects the next one.
	Counter int `json:"counter,omitempty"`
	// ActualOilKg is the measured oil; 0 records the expected yield.
	ActualOilKg float64 `json:"actual_oil_kg,omitempty"`
}

// CloseHopper mills the pending deliveries of a hopper into a new milling lot
// and fills the target tank. Closing with a counter whose lot already exists
// is a no-op: the stored lot is returned with created=false and the store is
// left unchanged.
func (s *Service) CloseHopper(ctx context.Context, in HopperClosure) (domain.MillingLot, bool, Result, error) {
	var (
		lot     domain.MillingLot
		created bool
	)
	res, err := s.run(ctx, "close_hopper", func(tx Transaction) (string, error) {
		if in.HopperID <= 0 {
			return "", invalid("hopper id must be positive")
		}
		if in.Counter < 0 {
			return "", invalid("hopper counter cannot be negative")
		}
		view := tx.Snapshot()
		counter := in.Counter
		if counter == 0 {
			counter = nextHopperCounter(view.ListMillingLots(), in.HopperID)
		}
		id := lotid.MillingLot(in.HopperID, counter)
		if existing, ok := view.FindMillingLot(id); ok {
			lot = existing
			return id, nil
		}
		tank, ok := view.FindTank(in.TankID)
		if !ok {
			return id, ErrNotFound{Entity: EntityTank, ID: strconv.Itoa(in.TankID)}
		}

		var slips []domain.DeliverySlip
		for _, slip := range view.ListDeliverySlips() {
			if slip.Type == domain.SlipMilling && slip.Status == domain.SlipPending && slip.HopperID == in.HopperID {
				slips = append(slips, slip)
			}
		}
		if len(slips) == 0 {
			return id, invalid("hopper %d has no pending deliveries", in.HopperID)
		}

		input, expected := decimal.Zero, decimal.Zero
		ids := make([]int, 0, len(slips))
		for _, slip := range slips {
			input = input.Add(kg(slip.NetKg))
			expected = expected.Add(expectedOil(slip))
			ids = append(ids, slip.ID)
		}
		actual := toKg(expected)
		if in.ActualOilKg > 0 {
			actual = toKg(kg(in.ActualOilKg))
		}
		candidate := domain.MillingLot{
			ID:            id,
			HopperID:      in.HopperID,
			UseCounter:    counter,
			Date:          dateOr(in.Date, tx),
			InputKg:       toKg(input),
			ExpectedOilKg: toKg(expected),
			ActualOilKg:   actual,
			TankID:        tank.ID,
			Variety:       slips[0].Variety,
			SlipIDs:       ids,
		}
		var err error
		if lot, err = tx.CreateMillingLot(candidate); err != nil {
			return id, err
		}
		created = true
		for _, slip := range slips {
			if _, err := tx.UpdateDeliverySlip(slip.ID, func(d *domain.DeliverySlip) error {
				d.Status = domain.SlipMilled
				d.MillingLotID = id
				return nil
			}); err != nil {
				return id, err
			}
		}
		_, err = tx.UpdateTank(tank.ID, func(t *domain.Tank) error {
			t.CurrentKg = addKg(t.CurrentKg, actual)
			if t.Variety == "" {
				t.Variety = lot.Variety
			}
			t.Status = tankStatus(*t)
			return nil
		})
		return id, err
	})
	if err != nil {
		return domain.MillingLot{}, false, res, err
	}
	return lot, created, res, nil
}

func nextHopperCounter(lots []domain.MillingLot, hopper int) int {
	next := 1
	for _, m := range lots {
		if m.HopperID == hopper && m.UseCounter >= next {
			next = m.UseCounter + 1
		}
	}
	return next
}

// DayClosure consolidates milling lots of a working day into a production lot.
type DayClosure struct {
	Date   domain.Date `json:"date"`
	TankID int         `json:"tank_id,omitempty"`
	// MillingLotIDs selects the lots to consolidate; empty takes every
	// unconsolidated lot milled on Date (into TankID when set).
	MillingLotIDs []string `json:"milling_lot_ids,omitempty"`
	// OilKg is the measured oil of the selected lots; 0 keeps their recorded actuals.
	OilKg float64 `json:"oil_kg,omitempty"`
	// Merge adds the lots to the day's existing production lot on the same
	// tank instead of opening a new suffixed lot.
	Merge bool `json:"merge,omitempty"`
	// ProductionLotID names the lot to merge into, whatever its date. It
	// implies Merge.
	ProductionLotID string `json:"production_lot_id,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// CloseDay opens or extends a production lot. On merge the olive and oil
// totals accumulate and the oil of every constituent milling lot is
// redistributed in proportion to its input kilograms. The tank content
// follows any change in the oil recorded for the constituents.
func (s *Service) CloseDay(ctx context.Context, in DayClosure) (domain.ProductionLot, bool, Result, error) {
	var (
		lot    domain.ProductionLot
		merged bool
	)
	res, err := s.run(ctx, "close_day", func(tx Transaction) (string, error) {
		if in.OilKg < 0 {
			return "", invalid("oil kg cannot be negative")
		}
		view := tx.Snapshot()
		date := dateOr(in.Date, tx)
		lots, err := selectDayLots(view, date, in)
		if err != nil {
			return "", err
		}
		tankID := in.TankID
		if tankID == 0 {
			tankID = lots[0].TankID
		}
		for _, m := range lots {
			if m.TankID != tankID {
				return "", invalid("milling lot %s is in tank %d, not %d", m.ID, m.TankID, tankID)
			}
		}
		if _, ok := view.FindTank(tankID); !ok {
			return "", ErrNotFound{Entity: EntityTank, ID: strconv.Itoa(tankID)}
		}

		olive, lotsOil := decimal.Zero, decimal.Zero
		ids := make([]string, 0, len(lots))
		for _, m := range lots {
			olive = olive.Add(kg(m.InputKg))
			lotsOil = lotsOil.Add(kg(m.ActualOilKg))
			ids = append(ids, m.ID)
		}
		measured := lotsOil
		if in.OilKg > 0 {
			measured = kg(in.OilKg)
		}

		target, err := mergeTarget(view, date, tankID, in)
		if err != nil {
			return in.ProductionLotID, err
		}

		var members []domain.MillingLot
		if target != nil {
			merged = true
			for _, id := range target.MillingLotIDs {
				if m, ok := view.FindMillingLot(id); ok {
					members = append(members, m)
				}
			}
			members = append(members, lots...)
			total := kg(target.OilKg).Add(measured)
			lot, err = tx.UpdateProductionLot(target.ID, func(p *domain.ProductionLot) error {
				p.MillingLotIDs = append(p.MillingLotIDs, ids...)
				p.OliveKg = toKg(kg(p.OliveKg).Add(olive))
				p.OilKg = toKg(total)
				p.Notes = joinNotes(p.Notes, in.Notes)
				return nil
			})
			if err != nil {
				return target.ID, err
			}
			return lot.ID, redistribute(tx, tankID, members, total)
		}

		sameDay := 0
		for _, p := range view.ListProductionLots() {
			if p.Date == date {
				sameDay++
			}
		}
		id, err := freeProductionID(view, date, sameDay)
		if err != nil {
			return "", err
		}
		lot, err = tx.CreateProductionLot(domain.ProductionLot{
			ID:            id,
			Date:          date,
			MillingLotIDs: ids,
			OliveKg:       toKg(olive),
			OilKg:         toKg(measured),
			TankID:        tankID,
			Notes:         strings.TrimSpace(in.Notes),
		})
		if err != nil {
			return id, err
		}
		if in.OilKg > 0 {
			return id, redistribute(tx, tankID, lots, measured)
		}
		return id, nil
	})
	if err != nil {
		return domain.ProductionLot{}, false, res, err
	}
	return lot, merged, res, nil
}

// mergeTarget resolves the production lot a merge extends. It returns nil
// when the closure opens a new lot.
func mergeTarget(view TransactionView, date domain.Date, tankID int, in DayClosure) (*domain.ProductionLot, error) {
	if id := strings.TrimSpace(in.ProductionLotID); id != "" {
		p, ok := view.FindProductionLot(id)
		if !ok {
			return nil, ErrNotFound{Entity: EntityProductionLot, ID: id}
		}
		if p.TankID != tankID {
			return nil, invalid("production lot %s is in tank %d, not %d", p.ID, p.TankID, tankID)
		}
		return &p, nil
	}
	if !in.Merge {
		return nil, nil
	}
	var candidates []domain.ProductionLot
	for _, p := range view.ListProductionLots() {
		if p.Date == date && p.TankID == tankID {
			candidates = append(candidates, p)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, invalid("no production lot on %s in tank %d to merge into", date, tankID)
	case 1:
		return &candidates[0], nil
	default:
		return nil, invalid("%d production lots on %s in tank %d, name the merge target", len(candidates), date, tankID)
	}
}

func selectDayLots(view TransactionView, date domain.Date, in DayClosure) ([]domain.MillingLot, error) {
	consolidated := make(map[string]struct{})
	for _, p := range view.ListProductionLots() {
		for _, id := range p.MillingLotIDs {
			consolidated[id] = struct{}{}
		}
	}
	var lots []domain.MillingLot
	if len(in.MillingLotIDs) == 0 {
		for _, m := range view.ListMillingLots() {
			if m.Date != date || (in.TankID != 0 && m.TankID != in.TankID) {
				continue
			}
			if _, done := consolidated[m.ID]; !done {
				lots = append(lots, m)
			}
		}
		if len(lots) == 0 {
			return nil, invalid("no milling lots to consolidate on %s", date)
		}
		return lots, nil
	}
	seen := make(map[string]struct{}, len(in.MillingLotIDs))
	for _, id := range in.MillingLotIDs {
		m, ok := view.FindMillingLot(id)
		if !ok {
			return nil, ErrNotFound{Entity: EntityMillingLot, ID: id}
		}
		if _, dup := seen[m.ID]; dup {
			return nil, invalid("milling lot %s listed twice", m.ID)
		}
		seen[m.ID] = struct{}{}
		if _, done := consolidated[m.ID]; done {
			return nil, invalid("milling lot %s already consolidated", m.ID)
		}
		lots = append(lots, m)
	}
	return lots, nil
}

// freeProductionID picks the next LP id for date. The first lot of a day has
// no suffix; later ones take -A, -B and so on.
func freeProductionID(view TransactionView, date domain.Date, sameDay int) (string, error) {
	for suffix := sameDay; suffix <= lotid.MaxProductionSuffix; suffix++ {
		id, err := lotid.ProductionLot(date, suffix)
		if err != nil {
			return "", invalid("%v", err)
		}
		if _, taken := view.FindProductionLot(id); !taken {
			return id, nil
		}
	}
	return "", invalid("no production lot suffix left for %s", date)
}

// redistribute sets the oil of each member lot to its input share of total
// and moves the difference into the tank.
func redistribute(tx Transaction, tankID int, members []domain.MillingLot, total decimal.Decimal) error {
	weights := make([]decimal.Decimal, len(members))
	before := decimal.Zero
	for i, m := range members {
		weights[i] = kg(m.InputKg)
		before = before.Add(kg(m.ActualOilKg))
	}
	shares := splitByShare(total, weights)
	for i, m := range members {
		share := shares[i]
		if _, err := tx.UpdateMillingLot(m.ID, func(lot *domain.MillingLot) error {
			lot.ActualOilKg = share
			return nil
		}); err != nil {
			return err
		}
	}
	delta := total.Round(kgPlaces).Sub(before)
	if delta.IsZero() {
		return nil
	}
	_, err := tx.UpdateTank(tankID, func(t *domain.Tank) error {
		t.CurrentKg = toKg(kg(t.CurrentKg).Add(delta))
		t.Status = tankStatus(*t)
		return nil
	})
	return err
}

func joinNotes(existing, extra string) string {
	extra = strings.TrimSpace(extra)
	switch {
	case extra == "":
		return existing
	case existing == "":
		return extra
	default:
		return existing + "; " + extra
	}
}
