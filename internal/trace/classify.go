package trace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"almazara/pkg/domain"
	"almazara/pkg/lotid"
)

// ErrNotFound reports a query that matches no known identifier.
var ErrNotFound = errors.New("identifier not found")

// Classify decides which entity term addresses. Strategies are tried in a
// fixed priority order and the first match wins: production lot, nurse tank
// batch, packaging lot, milling lot, delivery slip number.
func Classify(idx *Index, term string) (Ref, bool) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Ref{}, false
	}
	key := fold(term)
	if i, ok := idx.productCI[key]; ok {
		return Ref{Kind: KindProductionLot, ID: idx.snap.ProductionLots[i].ID}, true
	}
	if _, ok := idx.nurseByBatch[term]; ok {
		return Ref{Kind: KindNurseEntry, ID: term}, true
	}
	if i, ok := idx.packageCI[key]; ok {
		return Ref{Kind: KindPackagingLot, ID: idx.snap.PackagingLots[i].ID}, true
	}
	if i, ok := idx.millingCI[key]; ok {
		return Ref{Kind: KindMillingLot, ID: idx.snap.MillingLots[i].ID}, true
	}
	if n, ok := lotid.ParseSlip(term); ok {
		if _, found := idx.slips[n]; found {
			return Ref{Kind: KindDeliverySlip, ID: strconv.Itoa(n)}, true
		}
	}
	return Ref{}, false
}

// Lookup classifies term against snap and resolves the lineage. Unknown
// identifiers yield an error wrapping ErrNotFound.
func Lookup(snap domain.Snapshot, term string) (Report, error) {
	return NewIndex(snap).Lookup(term)
}

// Lookup classifies term against the index and resolves the lineage.
func (idx *Index) Lookup(term string) (Report, error) {
	ref, ok := Classify(idx, term)
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrNotFound, strings.TrimSpace(term))
	}
	report := Resolve(idx, ref)
	report.Query = strings.TrimSpace(term)
	return report, nil
}
