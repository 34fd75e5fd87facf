package core

import "almazara/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityProducer      = domain.EntityProducer
	EntityCustomer      = domain.EntityCustomer
	EntityDeliverySlip  = domain.EntityDeliverySlip
	EntityMillingLot    = domain.EntityMillingLot
	EntityProductionLot = domain.EntityProductionLot
	EntityTank          = domain.EntityTank
	EntityNurseTank     = domain.EntityNurseTank
	EntityOilMovement   = domain.EntityOilMovement
	EntityPackagingLot  = domain.EntityPackagingLot
	EntityBulkExit      = domain.EntityBulkExit
	EntitySalesOrder    = domain.EntitySalesOrder
	EntityAuxEntry      = domain.EntityAuxEntry
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
