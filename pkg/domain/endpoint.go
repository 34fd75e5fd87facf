package domain

import (
	"encoding/json"
	"fmt"
)

// EndpointKind tags the variant held by an Endpoint.
type EndpointKind string

const (
	EndpointTank         EndpointKind = "tank"
	EndpointNurseTank    EndpointKind = "nurse_tank"
	EndpointExternalSale EndpointKind = "external_sale"
	EndpointPackaging    EndpointKind = "packaging"
)

// Endpoint is the source or target of an oil movement. Only tank endpoints
// carry a TankID.
type Endpoint struct {
	Kind   EndpointKind
	TankID int
}

// TankEndpoint refers to a cellar tank.
func TankEndpoint(id int) Endpoint { return Endpoint{Kind: EndpointTank, TankID: id} }

// NurseTankEndpoint refers to the nurse tank.
func NurseTankEndpoint() Endpoint { return Endpoint{Kind: EndpointNurseTank} }

// ExternalSaleEndpoint refers to oil leaving the mill.
func ExternalSaleEndpoint() Endpoint { return Endpoint{Kind: EndpointExternalSale} }

// PackagingEndpoint refers to consumption by the bottling line.
func PackagingEndpoint() Endpoint { return Endpoint{Kind: EndpointPackaging} }

// IsTank reports whether the endpoint is the given cellar tank.
func (e Endpoint) IsTank(id int) bool {
	return e.Kind == EndpointTank && e.TankID == id
}

// Validate checks that the endpoint is a known variant.
func (e Endpoint) Validate() error {
	switch e.Kind {
	case EndpointTank:
		if e.TankID <= 0 {
			return fmt.Errorf("tank endpoint requires a positive tank id, got %d", e.TankID)
		}
		return nil
	case EndpointNurseTank, EndpointExternalSale, EndpointPackaging:
		if e.TankID != 0 {
			return fmt.Errorf("%s endpoint cannot carry a tank id", e.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unknown endpoint kind %q", e.Kind)
	}
}

func (e Endpoint) String() string {
	if e.Kind == EndpointTank {
		return fmt.Sprintf("tank:%d", e.TankID)
	}
	return string(e.Kind)
}

type endpointJSON struct {
	Kind   EndpointKind `json:"kind"`
	TankID int          `json:"tank_id,omitempty"`
}

// MarshalJSON encodes the endpoint as a tagged object.
func (e Endpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(endpointJSON{Kind: e.Kind, TankID: e.TankID})
}

// UnmarshalJSON decodes a tagged object and validates the variant.
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var raw endpointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := Endpoint{Kind: raw.Kind, TankID: raw.TankID}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*e = decoded
	return nil
}
