package core

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"almazara/pkg/domain"
	"almazara/pkg/lotid"
)

// PackagingRun describes one bottling session. Filtered runs draw from the
// current nurse tank batch; unfiltered runs draw straight from TankID.
type PackagingRun struct {
	Type        domain.PackagingType `json:"type"`
	Date        domain.Date          `json:"date"`
	TankID      int                  `json:"tank_id,omitempty"`
	Format      string               `json:"format"`
	Units       int                  `json:"units"`
	Kg          float64              `json:"kg"`
	BottleBatch string               `json:"bottle_batch,omitempty"`
	CapBatch    string               `json:"cap_batch,omitempty"`
	LabelBatch  string               `json:"label_batch,omitempty"`
}

// RecordPackaging bottles oil into a new packaging lot. The lot id and
// source text follow the printed label conventions and the lineage tag of
// the source is stamped on the record. The consumables batches named by the
// run must have enough units in stock.
func (s *Service) RecordPackaging(ctx context.Context, in PackagingRun) (domain.PackagingLot, Result, error) {
	var created domain.PackagingLot
	res, err := s.run(ctx, "record_packaging", func(tx Transaction) (string, error) {
		if in.Units <= 0 {
			return "", invalid("packaging units must be positive")
		}
		if in.Kg <= 0 {
			return "", invalid("packaging kg must be positive")
		}
		if strings.TrimSpace(in.Format) == "" {
			return "", invalid("packaging format required")
		}
		view := tx.Snapshot()
		if err := checkAuxStock(view, in); err != nil {
			return "", err
		}
		lot := domain.PackagingLot{
			Date:        dateOr(in.Date, tx),
			Format:      strings.TrimSpace(in.Format),
			Units:       in.Units,
			Type:        in.Type,
			Kg:          in.Kg,
			BottleBatch: in.BottleBatch,
			CapBatch:    in.CapBatch,
			LabelBatch:  in.LabelBatch,
		}
		var source domain.Endpoint
		switch in.Type {
		case domain.PackagingFiltered:
			nurse := view.NurseTank()
			tank, seq, year, ok := lotid.ParseNurseBatch(nurse.CurrentBatchID)
			if !ok {
				return "", invalid("nurse tank has no current batch")
			}
			if in.Kg > nurse.CurrentKg {
				return "", insufficient("nurse tank holds %.2f kg, %.2f requested", nurse.CurrentKg, in.Kg)
			}
			lot.ID = nextFilteredID(view, tank, seq, year)
			lot.SourceInfo = lotid.NurseSource(nurse.CurrentBatchID)
			lot.NurseBatchID = nurse.CurrentBatchID
			source = domain.NurseTankEndpoint()
		case domain.PackagingUnfiltered:
			tank, ok := view.FindTank(in.TankID)
			if !ok {
				return "", ErrNotFound{Entity: EntityTank, ID: strconv.Itoa(in.TankID)}
			}
			if in.Kg > tank.CurrentKg {
				return "", insufficient("tank %d holds %.2f kg, %.2f requested", tank.ID, tank.CurrentKg, in.Kg)
			}
			lot.ID = nextUnfilteredID(view, tank.ID, lot.Date)
			lot.SourceInfo = lotid.CellarSource(tank.ID)
			lot.CellarTankID = tank.ID
			source = domain.TankEndpoint(tank.ID)
		default:
			return "", invalid("unknown packaging type %q", in.Type)
		}

		var err error
		if created, err = tx.CreatePackagingLot(lot); err != nil {
			return lot.ID, err
		}
		if _, err := tx.AppendMovement(domain.OilMovement{
			Date:    created.Date,
			Source:  source,
			Target:  domain.PackagingEndpoint(),
			Kg:      created.Kg,
			Label:   created.ID,
			BatchID: created.NurseBatchID,
		}); err != nil {
			return created.ID, err
		}
		if source.Kind == domain.EndpointNurseTank {
			_, err = tx.UpdateNurseTank(func(n *domain.NurseTank) error {
				n.CurrentKg = subKg(n.CurrentKg, created.Kg)
				return nil
			})
			return created.ID, err
		}
		_, err = tx.UpdateTank(source.TankID, func(t *domain.Tank) error {
			t.CurrentKg = subKg(t.CurrentKg, created.Kg)
			t.Status = tankStatus(*t)
			return nil
		})
		return created.ID, err
	})
	return created, res, err
}

func nextFilteredID(view TransactionView, tank, seq, year int) string {
	session := 1
	for {
		id := lotid.FilteredPackaging(tank, seq, session, year)
		if _, taken := view.FindPackagingLot(id); !taken {
			return id
		}
		session++
	}
}

func nextUnfilteredID(view TransactionView, tank int, date domain.Date) string {
	n := 1
	for {
		id := lotid.UnfilteredPackaging(tank, date, n)
		if _, taken := view.FindPackagingLot(id); !taken {
			return id
		}
		n++
	}
}

// AuxStockLine is the stock of one consumables batch.
type AuxStockLine struct {
	Material  domain.AuxMaterial `json:"material"`
	Batch     string             `json:"batch"`
	Received  int                `json:"received"`
	Consumed  int                `json:"consumed"`
	Available int                `json:"available"`
}

type auxKey struct {
	material domain.AuxMaterial
	batch    string
}

func auxStock(view TransactionView) map[auxKey]*AuxStockLine {
	stock := make(map[auxKey]*AuxStockLine)
	line := func(material domain.AuxMaterial, batch string) *AuxStockLine {
		k := auxKey{material: material, batch: batch}
		l, ok := stock[k]
		if !ok {
			l = &AuxStockLine{Material: material, Batch: batch}
			stock[k] = l
		}
		return l
	}
	for _, e := range view.ListAuxEntries() {
		line(e.Material, e.Batch).Received += e.Units
	}
	for _, p := range view.ListPackagingLots() {
		for material, batch := range consumedBatches(p.BottleBatch, p.CapBatch, p.LabelBatch) {
			line(material, batch).Consumed += p.Units
		}
	}
	for _, l := range stock {
		l.Available = l.Received - l.Consumed
	}
	return stock
}

func consumedBatches(bottle, capBatch, label string) map[domain.AuxMaterial]string {
	out := make(map[domain.AuxMaterial]string, 3)
	if b := strings.TrimSpace(bottle); b != "" {
		out[domain.AuxBottle] = b
	}
	if b := strings.TrimSpace(capBatch); b != "" {
		out[domain.AuxCap] = b
	}
	if b := strings.TrimSpace(label); b != "" {
		out[domain.AuxLabel] = b
	}
	return out
}

func checkAuxStock(view TransactionView, in PackagingRun) error {
	stock := auxStock(view)
	for material, batch := range consumedBatches(in.BottleBatch, in.CapBatch, in.LabelBatch) {
		available := 0
		if l, ok := stock[auxKey{material: material, batch: batch}]; ok {
			available = l.Available
		}
		if available < in.Units {
			return insufficient("%s batch %s has %d units, %d needed", material, batch, available, in.Units)
		}
	}
	return nil
}

// AuxStock lists the stock of every consumables batch ordered by material and batch.
func (s *Service) AuxStock(ctx context.Context) ([]AuxStockLine, error) {
	var lines []AuxStockLine
	err := s.store.View(ctx, func(view TransactionView) error {
		stock := auxStock(view)
		lines = make([]AuxStockLine, 0, len(stock))
		for _, l := range stock {
			lines = append(lines, *l)
		}
		return nil
	})
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Material != lines[j].Material {
			return lines[i].Material < lines[j].Material
		}
		return lines[i].Batch < lines[j].Batch
	})
	return lines, err
}

// RecordAuxEntry records a receipt of packaging consumables.
func (s *Service) RecordAuxEntry(ctx context.Context, entry domain.AuxEntry) (domain.AuxEntry, Result, error) {
	var created domain.AuxEntry
	res, err := s.run(ctx, "record_aux_entry", func(tx Transaction) (string, error) {
		switch entry.Material {
		case domain.AuxBottle, domain.AuxCap, domain.AuxLabel:
		default:
			return entry.ID, invalid("unknown material %q", entry.Material)
		}
		entry.Batch = strings.TrimSpace(entry.Batch)
		if entry.Batch == "" {
			return entry.ID, invalid("material batch required")
		}
		if entry.Units <= 0 {
			return entry.ID, invalid("received units must be positive")
		}
		entry.Date = dateOr(entry.Date, tx)
		var err error
		created, err = tx.CreateAuxEntry(entry)
		return created.ID, err
	})
	return created, res, err
}

// RecordSalesOrder records a sale of packaged product. Lines may not sell
// more units of a packaging lot than were bottled.
func (s *Service) RecordSalesOrder(ctx context.Context, order domain.SalesOrder) (domain.SalesOrder, Result, error) {
	var created domain.SalesOrder
	res, err := s.run(ctx, "record_sales_order", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindCustomer(order.CustomerID); !ok {
			return order.ID, ErrNotFound{Entity: EntityCustomer, ID: order.CustomerID}
		}
		if len(order.Lines) == 0 {
			return order.ID, invalid("sales order needs at least one line")
		}
		sold := make(map[string]int)
		for _, o := range view.ListSalesOrders() {
			for _, line := range o.Lines {
				sold[line.PackagingLotID] += line.Units
			}
		}
		for _, line := range order.Lines {
			lot, ok := view.FindPackagingLot(line.PackagingLotID)
			if !ok {
				return order.ID, ErrNotFound{Entity: EntityPackagingLot, ID: line.PackagingLotID}
			}
			if line.Units <= 0 {
				return order.ID, invalid("line units must be positive")
			}
			if line.Price < 0 {
				return order.ID, invalid("line price cannot be negative")
			}
			sold[lot.ID] += line.Units
			if sold[lot.ID] > lot.Units {
				return order.ID, insufficient("packaging lot %s has %d units, %d sold", lot.ID, lot.Units, sold[lot.ID])
			}
		}
		order.Date = dateOr(order.Date, tx)
		var err error
		created, err = tx.CreateSalesOrder(order)
		return created.ID, err
	})
	return created, res, err
}
