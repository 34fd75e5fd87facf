package trace

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"almazara/pkg/domain"
	"almazara/pkg/lotid"
)

func TestEndToEndScenarioFromEveryIdentifier(t *testing.T) {
	idx := NewIndex(scenario())
	for _, term := range []string{"7", "MT1/1", "LP-150126", "3/1/2026", "3/1/1/2026"} {
		t.Run(term, func(t *testing.T) {
			report, err := idx.Lookup(term)
			if err != nil {
				t.Fatalf("lookup %q: %v", term, err)
			}
			if len(report.Origin.Producers) != 1 || report.Origin.Producers[0].Producer.ID != "P1" {
				t.Fatalf("expected producer P1, got %+v", report.Origin.Producers)
			}
			if !report.Origin.Producers[0].Registered {
				t.Fatalf("expected registered producer")
			}
			if len(report.Origin.Slips) != 1 || report.Origin.Slips[0].ID != 7 {
				t.Fatalf("expected slip 7, got %+v", report.Origin.Slips)
			}
			if !containsPackaging(report, "3/1/1/2026") {
				t.Fatalf("expected packaging lot 3/1/1/2026 in destination, got %+v", report.Destination.PackagingLots)
			}
			if report.Cellar.TankID != 3 {
				t.Fatalf("expected tank 3, got %d", report.Cellar.TankID)
			}
			if report.Production.Lot == nil || report.Production.Lot.ID != "LP-150126" {
				t.Fatalf("expected production lot LP-150126, got %+v", report.Production.Lot)
			}
			if report.SnapshotVersion != 12 {
				t.Fatalf("expected snapshot version 12, got %d", report.SnapshotVersion)
			}
		})
	}
}

func containsPackaging(r Report, id string) bool {
	for _, p := range r.Destination.PackagingLots {
		if p.ID == id {
			return true
		}
	}
	return false
}

func TestClassifierPriority(t *testing.T) {
	snap := scenario()
	snap.ProductionLots = append(snap.ProductionLots, domain.ProductionLot{ID: "7", TankID: 3, MillingLotIDs: []string{}})
	idx := NewIndex(snap)
	ref, ok := Classify(idx, " 7 ")
	if !ok || ref.Kind != KindProductionLot || ref.ID != "7" {
		t.Fatalf("expected production lot to win over slip, got %+v %v", ref, ok)
	}

	cases := map[string]Ref{
		"lp-150126":  {Kind: KindProductionLot, ID: "LP-150126"},
		"3/1/2026":   {Kind: KindNurseEntry, ID: "3/1/2026"},
		"3/1/1/2026": {Kind: KindPackagingLot, ID: "3/1/1/2026"},
		"mt1/1":      {Kind: KindMillingLot, ID: "MT1/1"},
	}
	for term, want := range cases {
		got, ok := Classify(NewIndex(scenario()), term)
		if !ok || got != want {
			t.Fatalf("classify %q: want %+v got %+v (%v)", term, want, got, ok)
		}
	}
	for _, term := range []string{"", "   ", "99", "LP-010101", "unknown"} {
		if ref, ok := Classify(idx, term); ok {
			t.Fatalf("expected %q to be unclassified, got %+v", term, ref)
		}
	}
}

func TestLookupNotFound(t *testing.T) {
	_, err := Lookup(scenario(), "MT9/9")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	idx := NewIndex(scenario())
	for _, term := range []string{"7", "MT1/1", "LP-150126", "3/1/2026", "3/1/1/2026"} {
		first, err := idx.Lookup(term)
		if err != nil {
			t.Fatalf("lookup %q: %v", term, err)
		}
		second, err := Lookup(scenario(), term)
		if err != nil {
			t.Fatalf("lookup %q: %v", term, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("reports for %q differ:\n%+v\n%+v", term, first, second)
		}
	}
}

func TestDirectSaleShortCircuits(t *testing.T) {
	snap := scenario()
	snap.DeliverySlips = append(snap.DeliverySlips, domain.DeliverySlip{
		ID: 9, Date: date(2026, 1, 16), ProducerID: "P1", NetKg: 1200,
		Type: domain.SlipDirectSale, Status: domain.SlipSoldDirect,
		BuyerID: "C2", MillingLotID: "MT1/1",
	})
	report, err := Lookup(snap, "9")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if report.Milling.Lot != nil || report.Production.Lot != nil || report.Cellar.Tank != nil {
		t.Fatalf("direct sale must skip production sections: %+v", report)
	}
	if !report.Destination.Empty() || len(report.Nurse.Transfers) != 0 {
		t.Fatalf("direct sale must have no destination")
	}
	sale := report.DirectSale
	if !sale.Active || sale.BuyerName != "Aceites a Granel SL" || !sale.Registered || sale.Date != date(2026, 1, 16) {
		t.Fatalf("unexpected direct sale section %+v", sale)
	}
	if len(report.Origin.Producers) != 1 || report.Origin.Slips[0].ID != 9 {
		t.Fatalf("expected producer and slip in origin")
	}
}

func TestDirectSaleFallsBackToFreeTextBuyer(t *testing.T) {
	snap := scenario()
	snap.DeliverySlips = append(snap.DeliverySlips, domain.DeliverySlip{
		ID: 10, Date: date(2026, 1, 17), ProducerID: "P1", Type: domain.SlipDirectSale, BuyerName: "Entamadora Local",
	})
	report, err := Lookup(snap, "10")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if report.DirectSale.BuyerName != "Entamadora Local" || report.DirectSale.Registered {
		t.Fatalf("expected free text buyer, got %+v", report.DirectSale)
	}
}

func TestPackagingBatchDerivation(t *testing.T) {
	snap := scenario()
	snap.PackagingLots = append(snap.PackagingLots,
		domain.PackagingLot{ID: "3/2/1/2026", Type: domain.PackagingFiltered},
		domain.PackagingLot{ID: "3/2/2026-E1", Type: domain.PackagingFiltered},
		domain.PackagingLot{ID: "ENV-77", Type: domain.PackagingFiltered, SourceInfo: "Nodriza Lote 5/3/2025"},
		domain.PackagingLot{ID: "ENV-78", Type: domain.PackagingFiltered, SourceInfo: "Nodriza", NurseBatchID: "4/1/2026"},
	)
	idx := NewIndex(snap)
	cases := []struct {
		id       string
		batch    string
		strategy lotid.BatchStrategy
	}{
		{"3/2/1/2026", "3/2/2026", lotid.StrategySegments},
		{"3/2/2026-E1", "3/2/2026", lotid.StrategyEntrySuffix},
		{"env-77", "5/3/2025", lotid.StrategySourceInfo},
		{"ENV-78", "4/1/2026", lotid.StrategyTag},
	}
	for _, tc := range cases {
		batch, strategy, ok := idx.NurseBatch(tc.id)
		if !ok || batch != tc.batch || strategy != tc.strategy {
			t.Fatalf("%s: want %s/%s got %s/%s (%v)", tc.id, tc.batch, tc.strategy, batch, strategy, ok)
		}
	}
}

func TestEmptyDestinationForFreshMilling(t *testing.T) {
	snap := scenario()
	snap.Tanks = append(snap.Tanks, domain.Tank{ID: 5, CapacityKg: 10000, CurrentKg: 2500})
	snap.DeliverySlips = append(snap.DeliverySlips, domain.DeliverySlip{ID: 8, ProducerID: "P2", NetKg: 1000, Type: domain.SlipMilling, Status: domain.SlipMilled, MillingLotID: "MT2/1"})
	snap.MillingLots = append(snap.MillingLots, domain.MillingLot{ID: "MT2/1", TankID: 5, InputKg: 1000, ActualOilKg: 190, SlipIDs: []int{8}})
	report, err := Lookup(snap, "MT2/1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !report.Destination.Empty() {
		t.Fatalf("expected empty destination, got %+v", report.Destination)
	}
	data, err := json.Marshal(report.Destination)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"packaging_lots":[]`) || !strings.Contains(string(data), `"bulk_exits":[]`) {
		t.Fatalf("expected empty arrays in %s", data)
	}
	if report.Production.Lot != nil {
		t.Fatalf("unmerged milling lot must have no production lot")
	}
	if report.Cellar.FillPercent != 25 {
		t.Fatalf("expected 25%% fill, got %v", report.Cellar.FillPercent)
	}
	if report.Origin.Producers[0].Registered {
		t.Fatalf("P2 is not registered")
	}
}

func TestNurseEntryListsAdmissibleProductionNewestFirst(t *testing.T) {
	snap := scenario()
	snap.DeliverySlips = append(snap.DeliverySlips, domain.DeliverySlip{ID: 11, ProducerID: "P1", Type: domain.SlipMilling, MillingLotID: "MT1/2"})
	snap.MillingLots = append(snap.MillingLots, domain.MillingLot{ID: "MT1/2", TankID: 3, Date: date(2026, 1, 18), SlipIDs: []int{11}})
	snap.ProductionLots = append(snap.ProductionLots,
		domain.ProductionLot{ID: "LP-180126", Date: date(2026, 1, 18), TankID: 3, MillingLotIDs: []string{"MT1/2"}},
		domain.ProductionLot{ID: "LP-250126", Date: date(2026, 1, 25), TankID: 3, MillingLotIDs: []string{}},
	)
	report, err := Lookup(snap, "3/1/2026")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	got := report.Production.Candidates
	if len(got) != 2 || got[0].ID != "LP-180126" || got[1].ID != "LP-150126" {
		t.Fatalf("unexpected candidates %+v", got)
	}
	if report.Production.Lot != nil {
		t.Fatalf("several candidates must not collapse to one lot")
	}
	if !hasNote(report, NoteCandidates) {
		t.Fatalf("expected candidates note, got %+v", report.Notes)
	}
	if len(report.Origin.Slips) != 2 {
		t.Fatalf("expected slips from every candidate, got %+v", report.Origin.Slips)
	}
}

func TestMillingLotInSeveralProductionLotsTakesFirst(t *testing.T) {
	snap := scenario()
	snap.ProductionLots = append(snap.ProductionLots, domain.ProductionLot{ID: "LP-160126", Date: date(2026, 1, 16), TankID: 3, MillingLotIDs: []string{"MT1/1"}})
	report, err := Lookup(snap, "MT1/1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if report.Production.Lot == nil || report.Production.Lot.ID != "LP-150126" {
		t.Fatalf("expected first production lot in store order")
	}
	if !hasNote(report, NoteAmbiguous) {
		t.Fatalf("expected ambiguity note")
	}
}

func TestUnfilteredPackagingResolvesCellarTank(t *testing.T) {
	snap := scenario()
	snap.Tanks = append(snap.Tanks, domain.Tank{ID: 31, CapacityKg: 1000})
	snap.PackagingLots = append(snap.PackagingLots,
		domain.PackagingLot{ID: "SF3-300126-1", Date: date(2026, 1, 30), Type: domain.PackagingUnfiltered, SourceInfo: "Bodega D3", Units: 12},
		domain.PackagingLot{ID: "ENV-31", Date: date(2026, 1, 30), Type: domain.PackagingUnfiltered, SourceInfo: "Bodega D31"},
	)
	report, err := Lookup(snap, "sf3-300126-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if report.Cellar.TankID != 3 || report.Milling.Lot == nil || report.Milling.Lot.ID != "MT1/1" || report.Milling.Inferred {
		t.Fatalf("unexpected upstream %+v / %+v", report.Cellar, report.Milling)
	}
	if len(report.Destination.PackagingLots) != 1 {
		t.Fatalf("packaging destination must be the lot itself")
	}

	fromProduction, err := Lookup(snap, "LP-150126")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !containsPackaging(fromProduction, "SF3-300126-1") {
		t.Fatalf("expected cellar bottling in production destination")
	}
	if containsPackaging(fromProduction, "ENV-31") {
		t.Fatalf("tank 31 lot must not match tank 3")
	}
}

func TestFilteredLotWithCellarSourceJoinsTankDestination(t *testing.T) {
	snap := scenario()
	snap.PackagingLots = append(snap.PackagingLots, domain.PackagingLot{
		ID: "ENV-7", Date: date(2026, 1, 30), Type: domain.PackagingFiltered, SourceInfo: "Bodega D3", Units: 6,
	})
	fromProduction, err := Lookup(snap, "LP-150126")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !containsPackaging(fromProduction, "ENV-7") {
		t.Fatalf("expected filtered cellar bottling in production destination")
	}
	report, err := Lookup(snap, "ENV-7")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if report.Cellar.TankID != 3 {
		t.Fatalf("expected tank 3 upstream, got %+v", report.Cellar)
	}
}

func TestPackagingFallbackIsFlaggedInferred(t *testing.T) {
	snap := scenario()
	snap.PackagingLots = append(snap.PackagingLots, domain.PackagingLot{
		ID: "SF3-010126-1", Date: date(2026, 1, 1), Type: domain.PackagingUnfiltered,
	})
	report, err := Lookup(snap, "SF3-010126-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !report.Milling.Inferred || report.Milling.Lot == nil || report.Milling.Lot.ID != "MT1/1" {
		t.Fatalf("expected inferred milling lot, got %+v", report.Milling)
	}
	if !hasNote(report, NoteInferred) {
		t.Fatalf("expected inferred note")
	}
}

func TestMalformedPackagingLeavesUpstreamEmpty(t *testing.T) {
	snap := scenario()
	snap.PackagingLots = append(snap.PackagingLots, domain.PackagingLot{ID: "3//1/2026", Type: domain.PackagingFiltered, SourceInfo: "sin referencia"})
	report, err := Lookup(snap, "3//1/2026")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(report.Origin.Producers) != 0 || report.Milling.Lot != nil || report.Cellar.TankID != 0 {
		t.Fatalf("expected empty upstream, got %+v", report)
	}
	if !hasNote(report, NoteUnresolved) {
		t.Fatalf("expected unresolved note")
	}
}

func TestBulkExitsAreCisternaOnly(t *testing.T) {
	snap := scenario()
	snap.BulkExits = []domain.BulkExit{
		{ID: "BX-1", TankID: 3, CustomerID: "C2", Kg: 50, Type: domain.ExitTanker, Plate: "1234-ABC"},
		{ID: "BX-2", TankID: 3, CustomerID: "C2", Kg: 1, Type: domain.ExitSample},
	}
	report, err := Lookup(snap, "LP-150126")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(report.Destination.BulkExits) != 1 || report.Destination.BulkExits[0].Exit.ID != "BX-1" {
		t.Fatalf("unexpected bulk exits %+v", report.Destination.BulkExits)
	}
	if report.Destination.BulkExits[0].CustomerName != "Aceites a Granel SL" {
		t.Fatalf("expected customer join")
	}
	if len(report.Destination.Sales) != 1 || report.Destination.Sales[0].CustomerName != "Ultramarinos Sur" {
		t.Fatalf("expected sales line joined to customer, got %+v", report.Destination.Sales)
	}
}

func TestPendingSlipHasOnlyOrigin(t *testing.T) {
	snap := scenario()
	snap.DeliverySlips = append(snap.DeliverySlips, domain.DeliverySlip{ID: 12, ProducerID: "P1", Type: domain.SlipMilling, Status: domain.SlipPending})
	report, err := Lookup(snap, "12")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(report.Origin.Slips) != 1 || report.Milling.Lot != nil || !report.Destination.Empty() {
		t.Fatalf("pending slip should only populate origin: %+v", report)
	}
	if len(report.Notes) != 0 {
		t.Fatalf("partial lineage is not noteworthy, got %+v", report.Notes)
	}
}

func hasNote(r Report, code NoteCode) bool {
	for _, n := range r.Notes {
		if n.Code == code {
			return true
		}
	}
	return false
}
