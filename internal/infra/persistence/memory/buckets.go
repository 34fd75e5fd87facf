package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"almazara/pkg/domain"
	"almazara/pkg/lotid"
)

// Buckets lists the state table rows written by the durable backends, one
// per snapshot collection plus the nurse tank singleton and the version.
var Buckets = []string{
	"producers",
	"customers",
	"delivery_slips",
	"milling_lots",
	"production_lots",
	"tanks",
	"nurse_tank",
	"movements",
	"packaging_lots",
	"bulk_exits",
	"sales_orders",
	"aux_entries",
	"version",
}

func bucketTarget(snapshot *Snapshot, bucket string) (any, bool) {
	switch bucket {
	case "producers":
		return &snapshot.Producers, true
	case "customers":
		return &snapshot.Customers, true
	case "delivery_slips":
		return &snapshot.DeliverySlips, true
	case "milling_lots":
		return &snapshot.MillingLots, true
	case "production_lots":
		return &snapshot.ProductionLots, true
	case "tanks":
		return &snapshot.Tanks, true
	case "nurse_tank":
		return &snapshot.NurseTank, true
	case "movements":
		return &snapshot.Movements, true
	case "packaging_lots":
		return &snapshot.PackagingLots, true
	case "bulk_exits":
		return &snapshot.BulkExits, true
	case "sales_orders":
		return &snapshot.SalesOrders, true
	case "aux_entries":
		return &snapshot.AuxEntries, true
	}
	return nil, false
}

// EncodeBucket marshals the collection stored under bucket.
func EncodeBucket(snapshot Snapshot, bucket string) ([]byte, error) {
	if bucket == "version" {
		return json.Marshal(strconv.FormatUint(snapshot.Version, 10))
	}
	target, ok := bucketTarget(&snapshot, bucket)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	return json.Marshal(target)
}

// DecodeBucket unmarshals payload into the collection named by bucket.
// Unknown buckets are ignored so newer databases stay readable.
func DecodeBucket(snapshot *Snapshot, bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if bucket == "version" {
		var raw string
		if err := json.Unmarshal(payload, &raw); err != nil {
			return fmt.Errorf("decode version: %w", err)
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("decode version: %w", err)
		}
		snapshot.Version = v
		return nil
	}
	if bucket == "movements" {
		movements, err := decodeMovements(payload)
		if err != nil {
			return fmt.Errorf("decode movements: %w", err)
		}
		snapshot.Movements = movements
		return nil
	}
	target, ok := bucketTarget(snapshot, bucket)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

// storedMovement mirrors domain.OilMovement with endpoints left raw, so rows
// written before typed endpoints still load.
type storedMovement struct {
	ID      string          `json:"id"`
	Date    domain.Date     `json:"date"`
	Source  json.RawMessage `json:"source"`
	Target  json.RawMessage `json:"target"`
	Kg      float64         `json:"kg"`
	Label   string          `json:"label,omitempty"`
	BatchID string          `json:"batch_id,omitempty"`
	Closure *domain.Closure `json:"closure,omitempty"`
}

func decodeMovements(payload []byte) ([]domain.OilMovement, error) {
	var rows []storedMovement
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, nil
	}
	out := make([]domain.OilMovement, 0, len(rows))
	for _, row := range rows {
		source, err := decodeEndpoint(row.Source)
		if err != nil {
			return nil, fmt.Errorf("movement %s source: %w", row.ID, err)
		}
		target, err := decodeEndpoint(row.Target)
		if err != nil {
			return nil, fmt.Errorf("movement %s target: %w", row.ID, err)
		}
		out = append(out, domain.OilMovement{
			ID:      row.ID,
			Date:    row.Date,
			Source:  source,
			Target:  target,
			Kg:      row.Kg,
			Label:   row.Label,
			BatchID: row.BatchID,
			Closure: row.Closure,
		})
	}
	return out, nil
}

// decodeEndpoint accepts the tagged object form or a bare sentinel tank number.
func decodeEndpoint(raw json.RawMessage) (domain.Endpoint, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		var tank int
		if err := json.Unmarshal(trimmed, &tank); err != nil {
			return domain.Endpoint{}, err
		}
		return lotid.EndpointFromLegacy(tank)
	}
	var e domain.Endpoint
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return domain.Endpoint{}, err
	}
	return e, nil
}
