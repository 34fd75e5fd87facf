// Package lotid builds and parses the identifier formats printed on mill
// paperwork and labels. It is the only place that knows the legacy text
// conventions; the rest of the code works with typed values.
package lotid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"almazara/pkg/domain"
)

// Sentinel tank numbers used by older movement records.
const (
	LegacyExternalSale = 0
	LegacyPackaging    = 998
	LegacyNurseTank    = 999
)

// MaxProductionSuffix is the number of same-day production lots that can be
// disambiguated with a letter suffix (A..Z).
const MaxProductionSuffix = 26

const entrySuffix = "-E"

var (
	millingRe    = regexp.MustCompile(`(?i)^MT(\d+)/(\d+)$`)
	productionRe = regexp.MustCompile(`(?i)^LP-(\d{2})(\d{2})(\d{2})(?:-([A-Z]))?$`)
	nurseBatchRe = regexp.MustCompile(`^(\d+)/(\d+)/(\d{4})$`)
	unfilteredRe = regexp.MustCompile(`(?i)SF(\d+)`)
	cellarSrcRe  = regexp.MustCompile(`(?i)Bodega\s+D\.?\s*(\d+)`)
	loteRe       = regexp.MustCompile(`(?i)\bLote\b\s*[:#]?\s*([0-9A-Za-z]+(?:/[0-9A-Za-z]+)*)`)
	slipDigitsRe = regexp.MustCompile(`^\d+$`)
)

// EndpointFromLegacy converts a stored tank number into a typed endpoint.
func EndpointFromLegacy(tank int) (domain.Endpoint, error) {
	switch {
	case tank == LegacyExternalSale:
		return domain.ExternalSaleEndpoint(), nil
	case tank == LegacyPackaging:
		return domain.PackagingEndpoint(), nil
	case tank == LegacyNurseTank:
		return domain.NurseTankEndpoint(), nil
	case tank > 0:
		return domain.TankEndpoint(tank), nil
	default:
		return domain.Endpoint{}, fmt.Errorf("invalid legacy tank number %d", tank)
	}
}

// EndpointToLegacy is the inverse of EndpointFromLegacy.
func EndpointToLegacy(e domain.Endpoint) int {
	switch e.Kind {
	case domain.EndpointNurseTank:
		return LegacyNurseTank
	case domain.EndpointPackaging:
		return LegacyPackaging
	case domain.EndpointTank:
		return e.TankID
	default:
		return LegacyExternalSale
	}
}

// MillingLot formats a milling lot id from the hopper and its use counter.
func MillingLot(hopper, counter int) string {
	return fmt.Sprintf("MT%d/%d", hopper, counter)
}

// ParseMillingLot extracts the hopper and use counter of a milling lot id.
func ParseMillingLot(id string) (hopper, counter int, ok bool) {
	m := millingRe.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return 0, 0, false
	}
	hopper, _ = strconv.Atoi(m[1])
	counter, _ = strconv.Atoi(m[2])
	return hopper, counter, true
}

// ProductionLot formats a production lot id. suffix 0 yields the bare
// LP-DDMMYY form; 1..26 append -A..-Z.
func ProductionLot(date domain.Date, suffix int) (string, error) {
	if date.IsZero() {
		return "", fmt.Errorf("production lot requires a date")
	}
	if suffix < 0 || suffix > MaxProductionSuffix {
		return "", fmt.Errorf("production lot suffix %d out of range", suffix)
	}
	base := "LP-" + DDMMYY(date)
	if suffix == 0 {
		return base, nil
	}
	return fmt.Sprintf("%s-%c", base, rune('A'+suffix-1)), nil
}

// ParseProductionLot returns the calendar date and suffix letter (0 when absent).
func ParseProductionLot(id string) (date domain.Date, suffix rune, ok bool) {
	m := productionRe.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return domain.Date{}, 0, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return domain.Date{}, 0, false
	}
	date = domain.NewDate(2000+year, time.Month(month), day)
	if m[4] != "" {
		suffix = rune(strings.ToUpper(m[4])[0])
	}
	return date, suffix, true
}

// DDMMYY renders a date the way production lot ids embed it.
func DDMMYY(d domain.Date) string {
	return fmt.Sprintf("%02d%02d%02d", d.Day, int(d.Month), d.Year%100)
}

// NurseBatch formats the batch id of a nurse tank entry.
func NurseBatch(tank, seq, year int) string {
	return fmt.Sprintf("%d/%d/%d", tank, seq, year)
}

// ParseNurseBatch extracts the components of a nurse batch id.
func ParseNurseBatch(id string) (tank, seq, year int, ok bool) {
	m := nurseBatchRe.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return 0, 0, 0, false
	}
	tank, _ = strconv.Atoi(m[1])
	seq, _ = strconv.Atoi(m[2])
	year, _ = strconv.Atoi(m[3])
	return tank, seq, year, true
}

// FilteredPackaging formats the id of a bottling session fed from the nurse tank.
func FilteredPackaging(tank, entry, session, year int) string {
	return fmt.Sprintf("%d/%d/%d/%d", tank, entry, session, year)
}

// UnfilteredPackaging formats the id of a bottling session fed straight from a cellar tank.
func UnfilteredPackaging(tank int, date domain.Date, seq int) string {
	return fmt.Sprintf("SF%d-%s-%d", tank, DDMMYY(date), seq)
}

// CellarSource is the source text printed for lots bottled from a cellar tank.
func CellarSource(tank int) string {
	return fmt.Sprintf("Bodega D%d", tank)
}

// NurseSource is the source text printed for lots bottled from the nurse tank.
func NurseSource(batch string) string {
	return "Nodriza Lote " + batch
}

// BatchStrategy names how a nurse batch id was recovered from a packaging lot.
type BatchStrategy string

const (
	StrategyNone        BatchStrategy = ""
	StrategyTag         BatchStrategy = "tag"
	StrategySegments    BatchStrategy = "segments"
	StrategyEntrySuffix BatchStrategy = "entry_suffix"
	StrategySourceInfo  BatchStrategy = "source_info"
)

// NurseBatchFromPackaging recovers the nurse batch id of a filtered packaging
// lot. A four-segment id d/e/s/y yields d/e/y; otherwise an id containing -E
// yields the text before it; otherwise a "Lote <batch>" mention in the source
// text is used.
func NurseBatchFromPackaging(id, sourceInfo string) (string, BatchStrategy, bool) {
	id = strings.TrimSpace(id)
	if parts := strings.Split(id, "/"); len(parts) == 4 && nonEmpty(parts) {
		return parts[0] + "/" + parts[1] + "/" + parts[3], StrategySegments, true
	}
	if i := strings.Index(id, entrySuffix); i > 0 {
		return id[:i], StrategyEntrySuffix, true
	}
	if m := loteRe.FindStringSubmatch(sourceInfo); m != nil {
		return m[1], StrategySourceInfo, true
	}
	return "", StrategyNone, false
}

// CellarTankFromPackaging recovers the cellar tank of an unfiltered packaging
// lot from an SF<N> marker in the id or a "Bodega D<N>" mention in the source text.
func CellarTankFromPackaging(id, sourceInfo string) (int, bool) {
	if m := unfilteredRe.FindStringSubmatch(id); m != nil {
		if tank, err := strconv.Atoi(m[1]); err == nil {
			return tank, true
		}
	}
	return CellarTankFromSource(sourceInfo)
}

// CellarTankFromSource parses only the "Bodega D<N>" source text.
func CellarTankFromSource(sourceInfo string) (int, bool) {
	m := cellarSrcRe.FindStringSubmatch(sourceInfo)
	if m == nil {
		return 0, false
	}
	tank, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return tank, true
}

// ParseSlip parses a bare delivery slip number.
func ParseSlip(term string) (int, bool) {
	term = strings.TrimSpace(term)
	if !slipDigitsRe.MatchString(term) {
		return 0, false
	}
	n, err := strconv.Atoi(term)
	if err != nil {
		return 0, false
	}
	return n, true
}

func nonEmpty(parts []string) bool {
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return false
		}
	}
	return true
}
