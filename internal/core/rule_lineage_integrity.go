package core

import (
	"context"
	"fmt"
	"strconv"

	"almazara/pkg/domain"
)

// LineageIntegrityRule blocks records written with references to missing
// upstream records and warns when a milling lot is consolidated into more
// than one production lot.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (lineageIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var touchedProduction bool
	for _, change := range changes {
		if change.After == nil {
			continue
		}
		switch after := change.After.(type) {
		case domain.MillingLot:
			if _, ok := view.FindTank(after.TankID); !ok {
				res.Violations = append(res.Violations, lineageViolation(domain.EntityMillingLot, after.ID,
					fmt.Sprintf("milling lot %s references missing tank %d", after.ID, after.TankID)))
			}
			for _, slipID := range after.SlipIDs {
				if _, ok := view.FindDeliverySlip(slipID); !ok {
					res.Violations = append(res.Violations, lineageViolation(domain.EntityMillingLot, after.ID,
						fmt.Sprintf("milling lot %s references missing delivery slip %d", after.ID, slipID)))
				}
			}
		case domain.ProductionLot:
			touchedProduction = true
			if _, ok := view.FindTank(after.TankID); !ok {
				res.Violations = append(res.Violations, lineageViolation(domain.EntityProductionLot, after.ID,
					fmt.Sprintf("production lot %s references missing tank %d", after.ID, after.TankID)))
			}
			for _, millID := range after.MillingLotIDs {
				if _, ok := view.FindMillingLot(millID); !ok {
					res.Violations = append(res.Violations, lineageViolation(domain.EntityProductionLot, after.ID,
						fmt.Sprintf("production lot %s references missing milling lot %s", after.ID, millID)))
				}
			}
		case domain.PackagingLot:
			evaluatePackagingLot(&res, after, view)
		case domain.DeliverySlip:
			if after.MillingLotID == "" {
				continue
			}
			if _, ok := view.FindMillingLot(after.MillingLotID); !ok {
				res.Violations = append(res.Violations, lineageViolation(domain.EntityDeliverySlip, strconv.Itoa(after.ID),
					fmt.Sprintf("delivery slip %d references missing milling lot %s", after.ID, after.MillingLotID)))
			}
		}
	}
	if touchedProduction {
		res.Merge(sharedMillingLots(view))
	}
	return res, nil
}

func evaluatePackagingLot(res *domain.Result, lot domain.PackagingLot, view domain.RuleView) {
	if lot.CellarTankID != 0 {
		if _, ok := view.FindTank(lot.CellarTankID); !ok {
			res.Violations = append(res.Violations, lineageViolation(domain.EntityPackagingLot, lot.ID,
				fmt.Sprintf("packaging lot %s references missing tank %d", lot.ID, lot.CellarTankID)))
		}
	}
	if lot.NurseBatchID == "" {
		return
	}
	for _, m := range view.ListMovements() {
		if m.IsNurseEntry() && m.BatchID == lot.NurseBatchID {
			return
		}
	}
	res.Violations = append(res.Violations, lineageViolation(domain.EntityPackagingLot, lot.ID,
		fmt.Sprintf("packaging lot %s references nurse batch %s with no tank entry", lot.ID, lot.NurseBatchID)))
}

// sharedMillingLots warns about milling lots listed by several production
// lots. Lineage lookups use the first one in store order.
func sharedMillingLots(view domain.RuleView) domain.Result {
	res := domain.Result{}
	owners := make(map[string][]string)
	var order []string
	for _, p := range view.ListProductionLots() {
		for _, millID := range p.MillingLotIDs {
			if _, seen := owners[millID]; !seen {
				order = append(order, millID)
			}
			owners[millID] = append(owners[millID], p.ID)
		}
	}
	for _, millID := range order {
		if lots := owners[millID]; len(lots) > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lineage_integrity",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("milling lot %s is part of production lots %v", millID, lots),
				Entity:   domain.EntityMillingLot,
				EntityID: millID,
			})
		}
	}
	return res
}

func lineageViolation(entity domain.EntityType, entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "lineage_integrity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: entityID,
	}
}
