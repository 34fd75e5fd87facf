package core

import (
	"context"
	"fmt"
	"strconv"

	"almazara/pkg/domain"
)

// NewTankCapacityRule returns the default in-transaction rule keeping tank
// contents between zero and capacity.
func NewTankCapacityRule() domain.Rule {
	return tankCapacityRule{}
}

type tankCapacityRule struct{}

func (tankCapacityRule) Name() string { return "tank_capacity" }

func (tankCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, tank := range view.ListTanks() {
		switch {
		case tank.CurrentKg < 0:
			res.Violations = append(res.Violations, capacityViolation(domain.EntityTank, strconv.Itoa(tank.ID),
				fmt.Sprintf("tank %d content negative: %.2f kg", tank.ID, tank.CurrentKg)))
		case tank.CapacityKg > 0 && tank.CurrentKg > tank.CapacityKg:
			res.Violations = append(res.Violations, capacityViolation(domain.EntityTank, strconv.Itoa(tank.ID),
				fmt.Sprintf("tank %d over capacity: %.2f/%.2f kg", tank.ID, tank.CurrentKg, tank.CapacityKg)))
		}
	}
	if nurse := view.NurseTank(); nurse.CurrentKg < 0 {
		res.Violations = append(res.Violations, capacityViolation(domain.EntityNurseTank, "nurse",
			fmt.Sprintf("nurse tank content negative: %.2f kg", nurse.CurrentKg)))
	}
	return res, nil
}

func capacityViolation(entity domain.EntityType, id, message string) domain.Violation {
	return domain.Violation{
		Rule:     "tank_capacity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}
