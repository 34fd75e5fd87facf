package core

import (
	"context"
	"strconv"
	"strings"

	"almazara/pkg/domain"
	"almazara/pkg/lotid"
)

// NurseTransfer moves oil from a cellar tank into the nurse tank.
type NurseTransfer struct {
	TankID int         `json:"tank_id"`
	Date   domain.Date `json:"date"`
	// Kg is the amount moved; 0 empties the tank.
	Kg float64 `json:"kg,omitempty"`
}

// TransferToNurseTank records a nurse tank entry. Each entry opens a batch
// <tank>/<seq>/<year> whose sequence counts entries from the same tank in
// the same year. The nurse tank holds one batch at a time, so an entry is
// refused until the previous batch has been bottled out.
func (s *Service) TransferToNurseTank(ctx context.Context, in NurseTransfer) (domain.OilMovement, Result, error) {
	var movement domain.OilMovement
	res, err := s.run(ctx, "transfer_to_nurse", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		tank, ok := view.FindTank(in.TankID)
		if !ok {
			return "", ErrNotFound{Entity: EntityTank, ID: strconv.Itoa(in.TankID)}
		}
		amount := in.Kg
		if amount < 0 {
			return "", invalid("transfer kg cannot be negative")
		}
		if amount == 0 {
			amount = tank.CurrentKg
		}
		if amount <= 0 {
			return "", insufficient("tank %d is empty", tank.ID)
		}
		if amount > tank.CurrentKg {
			return "", insufficient("tank %d holds %.2f kg, %.2f requested", tank.ID, tank.CurrentKg, amount)
		}
		if nurse := view.NurseTank(); nurse.CurrentKg > 0 {
			return "", invalid("nurse tank still holds %.2f kg of batch %s", nurse.CurrentKg, nurse.CurrentBatchID)
		}
		date := dateOr(in.Date, tx)
		seq := nextNurseSeq(view, tank.ID, date.Year)
		batch := lotid.NurseBatch(tank.ID, seq, date.Year)

		var err error
		movement, err = tx.AppendMovement(domain.OilMovement{
			Date:    date,
			Source:  domain.TankEndpoint(tank.ID),
			Target:  domain.NurseTankEndpoint(),
			Kg:      amount,
			Label:   lotid.NurseSource(batch),
			BatchID: batch,
		})
		if err != nil {
			return batch, err
		}
		if _, err := tx.UpdateTank(tank.ID, func(t *domain.Tank) error {
			t.CurrentKg = subKg(t.CurrentKg, amount)
			t.Status = tankStatus(*t)
			return nil
		}); err != nil {
			return batch, err
		}
		_, err = tx.UpdateNurseTank(func(n *domain.NurseTank) error {
			n.CurrentKg = addKg(n.CurrentKg, amount)
			n.LastSourceTankID = tank.ID
			n.LastEntrySeq = seq
			n.CurrentBatchID = batch
			n.Year = date.Year
			return nil
		})
		return batch, err
	})
	if err != nil {
		return domain.OilMovement{}, res, err
	}
	return movement, res, nil
}

func nextNurseSeq(view TransactionView, tankID, year int) int {
	last := 0
	for _, m := range view.ListMovements() {
		if !m.IsNurseEntry() {
			continue
		}
		tank, seq, y, ok := lotid.ParseNurseBatch(m.BatchID)
		if ok && tank == tankID && y == year && seq > last {
			last = seq
		}
	}
	if n := view.NurseTank(); n.LastSourceTankID == tankID && n.Year == year && n.LastEntrySeq > last {
		last = n.LastEntrySeq
	}
	return last + 1
}

// TankReset closes the current cycle of a cellar tank.
type TankReset struct {
	TankID int         `json:"tank_id"`
	Reason string      `json:"reason"`
	Date   domain.Date `json:"date"`
}

// ResetTank empties a tank and starts a new cycle. The residual content is
// written off through a closure movement that keeps the reason and cycle.
func (s *Service) ResetTank(ctx context.Context, in TankReset) (domain.Tank, Result, error) {
	var tank domain.Tank
	res, err := s.run(ctx, "reset_tank", func(tx Transaction) (string, error) {
		id := strconv.Itoa(in.TankID)
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			return id, invalid("reset reason required")
		}
		current, ok := tx.Snapshot().FindTank(in.TankID)
		if !ok {
			return id, ErrNotFound{Entity: EntityTank, ID: id}
		}
		if _, err := tx.AppendMovement(domain.OilMovement{
			Date:   dateOr(in.Date, tx),
			Source: domain.TankEndpoint(current.ID),
			Target: domain.ExternalSaleEndpoint(),
			Kg:     current.CurrentKg,
			Label:  "closure",
			Closure: &domain.Closure{
				Reason:     reason,
				ResidualKg: current.CurrentKg,
				Cycle:      current.Cycle,
			},
		}); err != nil {
			return id, err
		}
		var err error
		tank, err = tx.UpdateTank(current.ID, func(t *domain.Tank) error {
			t.Cycle++
			t.CurrentKg = 0
			t.Variety = ""
			t.Status = domain.TankEmpty
			return nil
		})
		return id, err
	})
	return tank, res, err
}

// RecordBulkExit records oil leaving a tank without bottling. Tanker exits
// require a registered customer; samples may omit it.
func (s *Service) RecordBulkExit(ctx context.Context, exit domain.BulkExit) (domain.BulkExit, Result, error) {
	var created domain.BulkExit
	res, err := s.run(ctx, "record_bulk_exit", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		switch exit.Type {
		case "":
			exit.Type = domain.ExitTanker
		case domain.ExitTanker, domain.ExitSample:
		default:
			return exit.ID, invalid("unknown exit type %q", exit.Type)
		}
		if exit.Kg <= 0 {
			return exit.ID, invalid("exit kg must be positive")
		}
		if exit.Type == domain.ExitTanker && exit.CustomerID == "" {
			return exit.ID, invalid("tanker exit requires a customer")
		}
		if exit.CustomerID != "" {
			if _, ok := view.FindCustomer(exit.CustomerID); !ok {
				return exit.ID, ErrNotFound{Entity: EntityCustomer, ID: exit.CustomerID}
			}
		}
		tank, ok := view.FindTank(exit.TankID)
		if !ok {
			return exit.ID, ErrNotFound{Entity: EntityTank, ID: strconv.Itoa(exit.TankID)}
		}
		if exit.Kg > tank.CurrentKg {
			return exit.ID, insufficient("tank %d holds %.2f kg, %.2f requested", tank.ID, tank.CurrentKg, exit.Kg)
		}
		exit.Date = dateOr(exit.Date, tx)
		var err error
		if created, err = tx.CreateBulkExit(exit); err != nil {
			return exit.ID, err
		}
		if _, err := tx.AppendMovement(domain.OilMovement{
			Date:   created.Date,
			Source: domain.TankEndpoint(tank.ID),
			Target: domain.ExternalSaleEndpoint(),
			Kg:     created.Kg,
			Label:  string(created.Type) + " " + created.ID,
		}); err != nil {
			return created.ID, err
		}
		_, err = tx.UpdateTank(tank.ID, func(t *domain.Tank) error {
			t.CurrentKg = subKg(t.CurrentKg, created.Kg)
			t.Status = tankStatus(*t)
			return nil
		})
		return created.ID, err
	})
	return created, res, err
}
