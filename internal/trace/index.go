package trace

import (
	"strings"

	"almazara/pkg/domain"
	"almazara/pkg/lotid"
)

// lineage holds the tags of a packaging lot, taken from the stored record or
// derived once from its identifier and source text.
type lineage struct {
	nurseBatch string
	strategy   lotid.BatchStrategy
	cellarTank int
}

// Index is a read-only set of lookup maps built once over a snapshot.
// Slices of positions preserve store order so first-match picks are stable.
type Index struct {
	snap domain.Snapshot

	producers  map[string]int
	customers  map[string]int
	slips      map[int]int
	tanks      map[int]int
	milling    map[string]int
	millingCI  map[string]int
	production map[string]int
	productCI  map[string]int
	packaging  map[string]int
	packageCI  map[string]int

	nurseByBatch      map[string][]int
	nurseBySourceTank map[int][]int
	productionByMill  map[string][]int
	productionByTank  map[int][]int
	millingByTank     map[int][]int
	millingBySlip     map[int][]int
	exitsByTank       map[int][]int
	packagingByBatch  map[string][]int
	packagingByCellar map[int][]int
	salesByPackaging  map[string][]saleRef
	packagingLineage  []lineage
}

type saleRef struct {
	order int
	line  int
}

// NewIndex builds the lookup maps for snap. The snapshot is cloned so later
// changes by the caller do not affect the index.
func NewIndex(snap domain.Snapshot) *Index {
	s := snap.Clone()
	idx := &Index{
		snap:              s,
		producers:         make(map[string]int, len(s.Producers)),
		customers:         make(map[string]int, len(s.Customers)),
		slips:             make(map[int]int, len(s.DeliverySlips)),
		tanks:             make(map[int]int, len(s.Tanks)),
		milling:           make(map[string]int, len(s.MillingLots)),
		millingCI:         make(map[string]int, len(s.MillingLots)),
		production:        make(map[string]int, len(s.ProductionLots)),
		productCI:         make(map[string]int, len(s.ProductionLots)),
		packaging:         make(map[string]int, len(s.PackagingLots)),
		packageCI:         make(map[string]int, len(s.PackagingLots)),
		nurseByBatch:      map[string][]int{},
		nurseBySourceTank: map[int][]int{},
		productionByMill:  map[string][]int{},
		productionByTank:  map[int][]int{},
		millingByTank:     map[int][]int{},
		millingBySlip:     map[int][]int{},
		exitsByTank:       map[int][]int{},
		packagingByBatch:  map[string][]int{},
		packagingByCellar: map[int][]int{},
		salesByPackaging:  map[string][]saleRef{},
		packagingLineage:  make([]lineage, len(s.PackagingLots)),
	}
	for i, p := range s.Producers {
		putFirst(idx.producers, p.ID, i)
	}
	for i, c := range s.Customers {
		putFirst(idx.customers, c.ID, i)
	}
	for i, d := range s.DeliverySlips {
		if _, ok := idx.slips[d.ID]; !ok {
			idx.slips[d.ID] = i
		}
	}
	for i, t := range s.Tanks {
		if _, ok := idx.tanks[t.ID]; !ok {
			idx.tanks[t.ID] = i
		}
	}
	for i, m := range s.MillingLots {
		putFirst(idx.milling, m.ID, i)
		putFirst(idx.millingCI, fold(m.ID), i)
		idx.millingByTank[m.TankID] = append(idx.millingByTank[m.TankID], i)
		for _, slipID := range m.SlipIDs {
			idx.millingBySlip[slipID] = append(idx.millingBySlip[slipID], i)
		}
	}
	for i, p := range s.ProductionLots {
		putFirst(idx.production, p.ID, i)
		putFirst(idx.productCI, fold(p.ID), i)
		idx.productionByTank[p.TankID] = append(idx.productionByTank[p.TankID], i)
		for _, millID := range p.MillingLotIDs {
			idx.productionByMill[millID] = append(idx.productionByMill[millID], i)
		}
	}
	for i, m := range s.Movements {
		if !m.IsNurseEntry() {
			continue
		}
		if m.BatchID != "" {
			idx.nurseByBatch[m.BatchID] = append(idx.nurseByBatch[m.BatchID], i)
		}
		if m.Source.Kind == domain.EndpointTank {
			idx.nurseBySourceTank[m.Source.TankID] = append(idx.nurseBySourceTank[m.Source.TankID], i)
		}
	}
	for i, e := range s.BulkExits {
		if e.Type == domain.ExitTanker {
			idx.exitsByTank[e.TankID] = append(idx.exitsByTank[e.TankID], i)
		}
	}
	for i, p := range s.PackagingLots {
		putFirst(idx.packaging, p.ID, i)
		putFirst(idx.packageCI, fold(p.ID), i)
		tags := packagingTags(p)
		idx.packagingLineage[i] = tags
		if tags.nurseBatch != "" {
			idx.packagingByBatch[tags.nurseBatch] = append(idx.packagingByBatch[tags.nurseBatch], i)
		}
		if tags.cellarTank > 0 {
			idx.packagingByCellar[tags.cellarTank] = append(idx.packagingByCellar[tags.cellarTank], i)
		}
	}
	for oi, o := range s.SalesOrders {
		for li, line := range o.Lines {
			key := fold(line.PackagingLotID)
			idx.salesByPackaging[key] = append(idx.salesByPackaging[key], saleRef{order: oi, line: li})
		}
	}
	return idx
}

// packagingTags returns the stamped lineage tags of p, deriving them from
// the identifier conventions when the record predates tagging.
func packagingTags(p domain.PackagingLot) lineage {
	tags := lineage{nurseBatch: p.NurseBatchID, cellarTank: p.CellarTankID}
	if tags.nurseBatch != "" {
		tags.strategy = lotid.StrategyTag
	} else if p.Type != domain.PackagingUnfiltered {
		if batch, strategy, ok := lotid.NurseBatchFromPackaging(p.ID, p.SourceInfo); ok {
			tags.nurseBatch, tags.strategy = batch, strategy
		}
	}
	if tags.cellarTank == 0 {
		// Any type bottled with a cellar source text counts as direct; the
		// SF id marker only exists on unfiltered lots.
		parse := lotid.CellarTankFromPackaging
		if p.Type == domain.PackagingFiltered {
			parse = func(_, source string) (int, bool) { return lotid.CellarTankFromSource(source) }
		}
		if tank, ok := parse(p.ID, p.SourceInfo); ok {
			tags.cellarTank = tank
		}
	}
	return tags
}

func putFirst(m map[string]int, key string, i int) {
	if _, ok := m[key]; !ok {
		m[key] = i
	}
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Version returns the version of the indexed snapshot.
func (idx *Index) Version() uint64 {
	return idx.snap.Version
}

// Snapshot returns a copy of the indexed snapshot.
func (idx *Index) Snapshot() domain.Snapshot {
	return idx.snap.Clone()
}

// NurseBatch returns the nurse batch a packaging lot was bottled from and the
// strategy that recovered it.
func (idx *Index) NurseBatch(packagingID string) (string, lotid.BatchStrategy, bool) {
	i, ok := idx.packageCI[fold(packagingID)]
	if !ok {
		return "", lotid.StrategyNone, false
	}
	tags := idx.packagingLineage[i]
	return tags.nurseBatch, tags.strategy, tags.nurseBatch != ""
}

func (idx *Index) producer(id string) (domain.Producer, bool) {
	i, ok := idx.producers[id]
	if !ok {
		return domain.Producer{}, false
	}
	return idx.snap.Producers[i], true
}

func (idx *Index) customer(id string) (domain.Customer, bool) {
	i, ok := idx.customers[id]
	if !ok {
		return domain.Customer{}, false
	}
	return idx.snap.Customers[i], true
}

func (idx *Index) slip(id int) (domain.DeliverySlip, bool) {
	i, ok := idx.slips[id]
	if !ok {
		return domain.DeliverySlip{}, false
	}
	return idx.snap.DeliverySlips[i], true
}

func (idx *Index) tank(id int) (domain.Tank, bool) {
	i, ok := idx.tanks[id]
	if !ok {
		return domain.Tank{}, false
	}
	return idx.snap.Tanks[i], true
}

func (idx *Index) millingLot(id string) (domain.MillingLot, bool) {
	i, ok := idx.milling[id]
	if !ok {
		return domain.MillingLot{}, false
	}
	return idx.snap.MillingLots[i], true
}
