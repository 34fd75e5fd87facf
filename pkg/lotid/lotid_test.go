package lotid

import (
	"testing"

	"almazara/pkg/domain"
)

func TestNurseBatchFromPackagingStrategies(t *testing.T) {
	cases := []struct {
		name       string
		id         string
		sourceInfo string
		want       string
		strategy   BatchStrategy
	}{
		{name: "four segments", id: "3/1/1/2026", want: "3/1/2026", strategy: StrategySegments},
		{name: "entry suffix", id: "3/2/2026-E4", want: "3/2/2026", strategy: StrategyEntrySuffix},
		{name: "source info", id: "ENV-0042", sourceInfo: "Nodriza Lote 5/3/2025", want: "5/3/2025", strategy: StrategySourceInfo},
		{name: "source info with colon", id: "ENV-0043", sourceInfo: "Depósito nodriza (lote: 5/4/2025)", want: "5/4/2025", strategy: StrategySourceInfo},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, strategy, ok := NurseBatchFromPackaging(tc.id, tc.sourceInfo)
			if !ok {
				t.Fatalf("expected batch for %q", tc.id)
			}
			if got != tc.want || strategy != tc.strategy {
				t.Fatalf("want %s via %s, got %s via %s", tc.want, tc.strategy, got, strategy)
			}
		})
	}
}

func TestNurseBatchFromPackagingFallsThrough(t *testing.T) {
	if got, _, ok := NurseBatchFromPackaging("3//1/2026", "sin referencia"); ok {
		t.Fatalf("expected no batch for malformed id, got %q", got)
	}
	if _, _, ok := NurseBatchFromPackaging("SF3-150126-1", "Bodega D3"); ok {
		t.Fatalf("unfiltered lot must not yield a nurse batch")
	}
}

func TestCellarTankFromPackaging(t *testing.T) {
	if tank, ok := CellarTankFromPackaging("SF12-150126-1", ""); !ok || tank != 12 {
		t.Fatalf("expected tank 12 from id, got %d %v", tank, ok)
	}
	if tank, ok := CellarTankFromPackaging("ENV-9", "Aceite de Bodega D.03"); !ok || tank != 3 {
		t.Fatalf("expected tank 3 from source text, got %d %v", tank, ok)
	}
	if _, ok := CellarTankFromPackaging("ENV-9", "Nodriza"); ok {
		t.Fatalf("expected no tank")
	}
}

func TestProductionLotFormat(t *testing.T) {
	date := domain.NewDate(2026, 1, 15)
	id, err := ProductionLot(date, 0)
	if err != nil || id != "LP-150126" {
		t.Fatalf("unexpected id %q err %v", id, err)
	}
	id, err = ProductionLot(date, 2)
	if err != nil || id != "LP-150126-B" {
		t.Fatalf("unexpected suffixed id %q err %v", id, err)
	}
	if _, err := ProductionLot(date, MaxProductionSuffix+1); err == nil {
		t.Fatalf("expected suffix overflow error")
	}
	parsed, suffix, ok := ParseProductionLot("lp-150126-b")
	if !ok || parsed != date || suffix != 'B' {
		t.Fatalf("unexpected parse %v %c %v", parsed, suffix, ok)
	}
	if _, _, ok := ParseProductionLot("LP-991326"); ok {
		t.Fatalf("expected invalid month to be rejected")
	}
}

func TestMillingAndNurseFormats(t *testing.T) {
	if id := MillingLot(1, 1); id != "MT1/1" {
		t.Fatalf("unexpected milling id %s", id)
	}
	if h, c, ok := ParseMillingLot("mt2/14"); !ok || h != 2 || c != 14 {
		t.Fatalf("unexpected milling parse %d %d %v", h, c, ok)
	}
	if id := NurseBatch(3, 1, 2026); id != "3/1/2026" {
		t.Fatalf("unexpected batch %s", id)
	}
	if tank, seq, year, ok := ParseNurseBatch("3/1/2026"); !ok || tank != 3 || seq != 1 || year != 2026 {
		t.Fatalf("unexpected batch parse")
	}
	if id := FilteredPackaging(3, 1, 1, 2026); id != "3/1/1/2026" {
		t.Fatalf("unexpected packaging id %s", id)
	}
	if id := UnfilteredPackaging(4, domain.NewDate(2026, 2, 3), 2); id != "SF4-030226-2" {
		t.Fatalf("unexpected unfiltered id %s", id)
	}
}

func TestLegacyEndpoints(t *testing.T) {
	cases := map[int]domain.Endpoint{
		0:   domain.ExternalSaleEndpoint(),
		998: domain.PackagingEndpoint(),
		999: domain.NurseTankEndpoint(),
		4:   domain.TankEndpoint(4),
	}
	for legacy, want := range cases {
		got, err := EndpointFromLegacy(legacy)
		if err != nil || got != want {
			t.Fatalf("legacy %d: want %v got %v (%v)", legacy, want, got, err)
		}
		if back := EndpointToLegacy(got); back != legacy {
			t.Fatalf("legacy %d round trip gave %d", legacy, back)
		}
	}
	if _, err := EndpointFromLegacy(-1); err == nil {
		t.Fatalf("expected error for negative tank")
	}
}

func TestParseSlip(t *testing.T) {
	if n, ok := ParseSlip(" 7 "); !ok || n != 7 {
		t.Fatalf("expected slip 7")
	}
	for _, bad := range []string{"7a", "-7", "", "MT1/1"} {
		if _, ok := ParseSlip(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
