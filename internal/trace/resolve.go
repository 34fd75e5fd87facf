package trace

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"almazara/pkg/domain"
)

const (
	sectionOrigin      = "origin"
	sectionMilling     = "milling"
	sectionProduction  = "production"
	sectionCellar      = "cellar"
	sectionNurse       = "nurse"
	sectionDestination = "destination"
)

// Resolve builds the lineage report rooted at ref. Missing joins leave the
// matching section empty; Resolve never fails.
func Resolve(idx *Index, ref Ref) Report {
	r := newReport(ref.ID, ref, idx.Version())
	res := resolver{idx: idx, report: &r, origin: newOriginBuilder(idx)}
	switch ref.Kind {
	case KindProductionLot:
		res.fromProduction(ref.ID)
	case KindNurseEntry:
		res.fromNurseEntry(ref.ID)
	case KindPackagingLot:
		res.fromPackaging(ref.ID)
	case KindMillingLot:
		res.fromMilling(ref.ID)
	case KindDeliverySlip:
		res.fromSlip(ref.ID)
	default:
		r.note(NoteUnresolved, sectionOrigin, fmt.Sprintf("unknown start kind %q", ref.Kind))
	}
	r.Origin = res.origin.section()
	r.Notes = append(r.Notes, res.origin.notes...)
	return r
}

type resolver struct {
	idx    *Index
	report *Report
	origin *originBuilder
}

func (res resolver) fromProduction(id string) {
	i, ok := res.idx.production[id]
	if !ok {
		res.report.note(NoteMissingReference, sectionProduction, "production lot "+id+" not found")
		return
	}
	lot := domain.CloneProductionLot(res.idx.snap.ProductionLots[i])
	res.report.Production.Lot = &lot
	lots := res.constituents(lot)
	res.setMilling(lots)
	res.origin.addLots(lots)
	res.tankChain(lot.TankID)
}

func (res resolver) fromNurseEntry(batch string) {
	positions := res.idx.nurseByBatch[batch]
	if len(positions) == 0 {
		res.report.note(NoteMissingReference, sectionNurse, "nurse batch "+batch+" not found")
		return
	}
	res.nurseTransfers(positions, batch)
	entry := res.idx.snap.Movements[positions[0]]
	res.packagingForBatches([]string{batch})
	if entry.Source.Kind != domain.EndpointTank {
		res.report.note(NoteUnresolved, sectionCellar, "nurse batch "+batch+" has no source tank")
		return
	}
	tankID := entry.Source.TankID
	res.setCellar(tankID)

	candidates := res.admissibleProduction(tankID, entry.Date)
	res.report.Production.Candidates = candidates
	switch {
	case len(candidates) == 1:
		lot := domain.CloneProductionLot(candidates[0])
		res.report.Production.Lot = &lot
	case len(candidates) > 1:
		res.report.note(NoteCandidates, sectionProduction,
			fmt.Sprintf("%d production lots on tank %d precede batch %s", len(candidates), tankID, batch))
	}

	var lots []domain.MillingLot
	seen := map[string]bool{}
	for _, p := range candidates {
		for _, m := range res.constituents(p) {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			lots = append(lots, m)
		}
	}
	res.report.Milling.Constituents = nonNilLots(lots)
	if len(candidates) == 1 && len(lots) > 0 {
		first := domain.CloneMillingLot(lots[0])
		res.report.Milling.Lot = &first
	}
	res.origin.addLots(lots)
}

// admissibleProduction returns production lots on tankID dated on or before
// date, newest first. A zero date admits every lot on the tank.
func (res resolver) admissibleProduction(tankID int, date domain.Date) []domain.ProductionLot {
	out := []domain.ProductionLot{}
	for _, i := range res.idx.productionByTank[tankID] {
		p := res.idx.snap.ProductionLots[i]
		if !date.IsZero() && p.Date.After(date) {
			continue
		}
		out = append(out, domain.CloneProductionLot(p))
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Date.After(out[b].Date)
	})
	return out
}

func (res resolver) fromPackaging(id string) {
	i, ok := res.idx.packaging[id]
	if !ok {
		res.report.note(NoteMissingReference, sectionDestination, "packaging lot "+id+" not found")
		return
	}
	lot := res.idx.snap.PackagingLots[i]
	tags := res.idx.packagingLineage[i]
	res.report.Destination.PackagingLots = []domain.PackagingLot{lot}
	res.report.Destination.Sales = res.idx.salesFor([]domain.PackagingLot{lot})

	tankID := 0
	if tags.nurseBatch != "" {
		positions := res.idx.nurseByBatch[tags.nurseBatch]
		if len(positions) == 0 {
			res.report.note(NoteMissingReference, sectionNurse, "no nurse transfer recorded for batch "+tags.nurseBatch)
		} else {
			res.nurseTransfers(positions, tags.nurseBatch)
			if entry := res.idx.snap.Movements[positions[0]]; entry.Source.Kind == domain.EndpointTank {
				tankID = entry.Source.TankID
			}
		}
	}
	if tankID == 0 && tags.cellarTank > 0 {
		tankID = tags.cellarTank
	}

	var production *domain.ProductionLot
	if pi, ok := res.idx.productCI[fold(lot.ID)]; ok {
		p := domain.CloneProductionLot(res.idx.snap.ProductionLots[pi])
		production = &p
	}

	if tankID == 0 && production != nil {
		tankID = production.TankID
	}
	if tankID == 0 {
		res.report.note(NoteUnresolved, sectionCellar, "no source tank could be derived from packaging lot "+lot.ID)
		return
	}
	res.setCellar(tankID)

	var milling *domain.MillingLot
	inferred := false
	if production == nil {
		milling, inferred = res.millingForTank(tankID, lot.Date)
		if milling != nil {
			production = res.firstProductionContaining(milling.ID)
		}
	}

	if production != nil {
		res.report.Production.Lot = production
		lots := res.constituents(*production)
		res.report.Milling.Constituents = lots
		res.origin.addLots(lots)
		if milling == nil && len(lots) > 0 {
			first := domain.CloneMillingLot(lots[0])
			milling = &first
		}
	} else if milling != nil {
		res.report.Milling.Constituents = []domain.MillingLot{domain.CloneMillingLot(*milling)}
		res.origin.addLots([]domain.MillingLot{*milling})
	}
	res.report.Milling.Lot = milling
	res.report.Milling.Inferred = inferred
}

// millingForTank picks the first milling lot on tankID dated on or before
// date. When none qualifies it falls back to any lot on the tank, then to the
// first lot in the store, and flags the pick as inferred.
func (res resolver) millingForTank(tankID int, date domain.Date) (*domain.MillingLot, bool) {
	var matches []int
	for _, i := range res.idx.millingByTank[tankID] {
		m := res.idx.snap.MillingLots[i]
		if date.IsZero() || !m.Date.After(date) {
			matches = append(matches, i)
		}
	}
	if len(matches) > 0 {
		if len(matches) > 1 {
			res.report.note(NoteAmbiguous, sectionMilling,
				fmt.Sprintf("%d milling lots on tank %d precede the packaging date; using the first", len(matches), tankID))
		}
		m := domain.CloneMillingLot(res.idx.snap.MillingLots[matches[0]])
		return &m, false
	}
	if onTank := res.idx.millingByTank[tankID]; len(onTank) > 0 {
		m := domain.CloneMillingLot(res.idx.snap.MillingLots[onTank[0]])
		res.report.note(NoteInferred, sectionMilling,
			fmt.Sprintf("no milling lot on tank %d precedes the packaging date; %s is inferred", tankID, m.ID))
		return &m, true
	}
	if len(res.idx.snap.MillingLots) > 0 {
		m := domain.CloneMillingLot(res.idx.snap.MillingLots[0])
		res.report.note(NoteInferred, sectionMilling,
			fmt.Sprintf("no milling lot recorded on tank %d; %s is inferred", tankID, m.ID))
		return &m, true
	}
	return nil, false
}

func (res resolver) fromMilling(id string) {
	m, ok := res.idx.millingLot(id)
	if !ok {
		res.report.note(NoteMissingReference, sectionMilling, "milling lot "+id+" not found")
		return
	}
	m = domain.CloneMillingLot(m)
	res.setMilling([]domain.MillingLot{m})
	res.origin.addLots([]domain.MillingLot{m})
	res.report.Production.Lot = res.firstProductionContaining(m.ID)
	res.tankChain(m.TankID)
}

func (res resolver) fromSlip(id string) {
	n, err := strconv.Atoi(id)
	if err != nil {
		res.report.note(NoteUnresolved, sectionOrigin, "slip number "+id+" is not numeric")
		return
	}
	slip, ok := res.idx.slip(n)
	if !ok {
		res.report.note(NoteMissingReference, sectionOrigin, "delivery slip "+id+" not found")
		return
	}
	res.origin.addSlips([]int{slip.ID})
	if slip.Type == domain.SlipDirectSale {
		res.directSale(slip)
		return
	}
	millingID := slip.MillingLotID
	if millingID == "" {
		if lots := res.idx.millingBySlip[slip.ID]; len(lots) > 0 {
			millingID = res.idx.snap.MillingLots[lots[0]].ID
		}
	}
	if millingID == "" {
		return
	}
	res.fromMilling(millingID)
}

func (res resolver) directSale(slip domain.DeliverySlip) {
	sale := DirectSaleSection{
		Active:    true,
		SlipID:    slip.ID,
		BuyerID:   slip.BuyerID,
		BuyerName: slip.BuyerName,
		Date:      slip.Date,
		NetKg:     slip.NetKg,
	}
	if c, ok := res.idx.customer(slip.BuyerID); ok && slip.BuyerID != "" {
		sale.BuyerName = c.Name
		sale.Registered = true
	}
	res.report.DirectSale = sale
}

func (res resolver) firstProductionContaining(millingID string) *domain.ProductionLot {
	positions := res.idx.productionByMill[millingID]
	if len(positions) == 0 {
		return nil
	}
	if len(positions) > 1 {
		res.report.note(NoteAmbiguous, sectionProduction,
			fmt.Sprintf("milling lot %s belongs to %d production lots; using the first", millingID, len(positions)))
	}
	p := domain.CloneProductionLot(res.idx.snap.ProductionLots[positions[0]])
	return &p
}

func (res resolver) constituents(p domain.ProductionLot) []domain.MillingLot {
	lots := make([]domain.MillingLot, 0, len(p.MillingLotIDs))
	for _, id := range p.MillingLotIDs {
		m, ok := res.idx.millingLot(id)
		if !ok {
			res.report.note(NoteMissingReference, sectionMilling, "milling lot "+id+" referenced by "+p.ID+" not found")
			continue
		}
		lots = append(lots, domain.CloneMillingLot(m))
	}
	return lots
}

func (res resolver) setMilling(lots []domain.MillingLot) {
	res.report.Milling.Constituents = nonNilLots(lots)
	if len(lots) > 0 {
		first := domain.CloneMillingLot(lots[0])
		res.report.Milling.Lot = &first
	}
}

// tankChain fills the cellar, nurse and destination sections for oil stored in tankID.
func (res resolver) tankChain(tankID int) {
	if tankID <= 0 {
		return
	}
	res.setCellar(tankID)
	var batches []string
	for _, i := range res.idx.nurseBySourceTank[tankID] {
		m := domain.CloneMovement(res.idx.snap.Movements[i])
		res.report.Nurse.Transfers = append(res.report.Nurse.Transfers, m)
		if m.BatchID != "" {
			batches = append(batches, m.BatchID)
		}
	}
	for _, i := range res.idx.exitsByTank[tankID] {
		e := res.idx.snap.BulkExits[i]
		entry := ExitEntry{Exit: e}
		if c, ok := res.idx.customer(e.CustomerID); ok {
			entry.CustomerName = c.Name
		}
		res.report.Destination.BulkExits = append(res.report.Destination.BulkExits, entry)
	}
	positions := map[int]bool{}
	for _, i := range res.idx.packagingByCellar[tankID] {
		positions[i] = true
	}
	for _, batch := range batches {
		for _, i := range res.idx.packagingByBatch[batch] {
			positions[i] = true
		}
	}
	res.appendPackaging(positions)
}

func (res resolver) packagingForBatches(batches []string) {
	positions := map[int]bool{}
	for _, batch := range batches {
		for _, i := range res.idx.packagingByBatch[batch] {
			positions[i] = true
		}
	}
	res.appendPackaging(positions)
}

// appendPackaging adds the packaging lots at positions in store order.
func (res resolver) appendPackaging(positions map[int]bool) {
	if len(positions) == 0 {
		return
	}
	ordered := make([]int, 0, len(positions))
	for i := range positions {
		ordered = append(ordered, i)
	}
	sort.Ints(ordered)
	lots := make([]domain.PackagingLot, 0, len(ordered))
	for _, i := range ordered {
		lots = append(lots, res.idx.snap.PackagingLots[i])
	}
	res.report.Destination.PackagingLots = append(res.report.Destination.PackagingLots, lots...)
	res.report.Destination.Sales = append(res.report.Destination.Sales, res.idx.salesFor(lots)...)
}

func (res resolver) nurseTransfers(positions []int, batch string) {
	if len(positions) > 1 {
		res.report.note(NoteAmbiguous, sectionNurse,
			fmt.Sprintf("batch %s was recorded by %d transfers; the first gives the source tank", batch, len(positions)))
	}
	for _, i := range positions {
		res.report.Nurse.Transfers = append(res.report.Nurse.Transfers, domain.CloneMovement(res.idx.snap.Movements[i]))
	}
}

func (res resolver) setCellar(tankID int) {
	res.report.Cellar.TankID = tankID
	t, ok := res.idx.tank(tankID)
	if !ok {
		res.report.note(NoteMissingReference, sectionCellar, fmt.Sprintf("tank %d not registered", tankID))
		return
	}
	res.report.Cellar.Tank = &t
	res.report.Cellar.FillPercent = fillPercent(t)
}

func fillPercent(t domain.Tank) float64 {
	if t.CapacityKg <= 0 {
		return 0
	}
	pct := decimal.NewFromFloat(t.CurrentKg).
		Div(decimal.NewFromFloat(t.CapacityKg)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	return pct.InexactFloat64()
}

func (idx *Index) salesFor(lots []domain.PackagingLot) []SaleEntry {
	out := []SaleEntry{}
	for _, lot := range lots {
		for _, ref := range idx.salesByPackaging[fold(lot.ID)] {
			order := idx.snap.SalesOrders[ref.order]
			line := order.Lines[ref.line]
			entry := SaleEntry{
				OrderID:        order.ID,
				Date:           order.Date,
				CustomerID:     order.CustomerID,
				PackagingLotID: line.PackagingLotID,
				Units:          line.Units,
				Price:          line.Price,
			}
			if c, ok := idx.customer(order.CustomerID); ok {
				entry.CustomerName = c.Name
			}
			out = append(out, entry)
		}
	}
	return out
}

func nonNilLots(lots []domain.MillingLot) []domain.MillingLot {
	if lots == nil {
		return []domain.MillingLot{}
	}
	return lots
}

// originBuilder accumulates slips deduplicated by id and groups them by producer
// in first-seen order.
type originBuilder struct {
	idx       *Index
	seen      map[int]bool
	slips     []domain.DeliverySlip
	producers []ProducerEntry
	byID      map[string]int
	notes     []Note
}

func newOriginBuilder(idx *Index) *originBuilder {
	return &originBuilder{idx: idx, seen: map[int]bool{}, byID: map[string]int{}}
}

func (b *originBuilder) addLots(lots []domain.MillingLot) {
	for _, m := range lots {
		b.addSlips(m.SlipIDs)
	}
}

func (b *originBuilder) addSlips(ids []int) {
	for _, id := range ids {
		if b.seen[id] {
			continue
		}
		b.seen[id] = true
		slip, ok := b.idx.slip(id)
		if !ok {
			b.notes = append(b.notes, Note{Code: NoteMissingReference, Section: sectionOrigin, Message: fmt.Sprintf("delivery slip %d not found", id)})
			continue
		}
		b.slips = append(b.slips, slip)
		pos, ok := b.byID[slip.ProducerID]
		if !ok {
			entry := ProducerEntry{Producer: domain.Producer{ID: slip.ProducerID}, SlipIDs: []int{}}
			if p, found := b.idx.producer(slip.ProducerID); found {
				entry.Producer = p
				entry.Registered = true
			}
			b.producers = append(b.producers, entry)
			pos = len(b.producers) - 1
			b.byID[slip.ProducerID] = pos
		}
		b.producers[pos].SlipIDs = append(b.producers[pos].SlipIDs, slip.ID)
		b.producers[pos].NetKg = decimal.NewFromFloat(b.producers[pos].NetKg).Add(decimal.NewFromFloat(slip.NetKg)).InexactFloat64()
	}
}

func (b *originBuilder) section() OriginSection {
	out := OriginSection{Producers: b.producers, Slips: b.slips}
	if out.Producers == nil {
		out.Producers = []ProducerEntry{}
	}
	if out.Slips == nil {
		out.Slips = []domain.DeliverySlip{}
	}
	return out
}
