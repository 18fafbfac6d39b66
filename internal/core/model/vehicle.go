package model

import (
	"encoding/json"
	"fmt"
)

// Vehicle is the common representation every provider payload is normalized into.
// Provider specific fields live in Ext and are reached through As.
type Vehicle struct {
	ID         string
	Lat        float64
	Lng        float64
	ProviderID string
	Type       VehicleType
	Attributes []Attribute
	Ext        Extension
}

// Extension is one variant of the provider specific field set.
type Extension interface {
	Kind() string
}

// As returns the vehicle's extension as T when the variant matches.
func As[T Extension](v Vehicle) (T, bool) {
	var zero T
	if v.Ext == nil {
		return zero, false
	}
	t, ok := v.Ext.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

type IndigoWheelExt struct {
	PlateNo  string `json:"plate_no"`
	Discount int    `json:"discount"`
	Outside  int    `json:"outside"`
}

func (IndigoWheelExt) Kind() string { return "indigowheel" }

type OfoExt struct {
	CarNo         string `json:"carno"`
	OrdinaryCount int    `json:"ordinaryCount"`
	BomNum        string `json:"bomNum,omitempty"`
}

func (OfoExt) Kind() string { return "ofo" }

type MobikeExt struct {
	BikeType int     `json:"bikeType"`
	Distance float64 `json:"distance"`
	DistNum  int     `json:"distNum"`
}

func (MobikeExt) Kind() string { return "mobike" }

type ObikeExt struct {
	IMEI      string `json:"imei,omitempty"`
	Battery   int    `json:"battery"`
	Helmet    bool   `json:"helmet"`
	CountryID int    `json:"countryId"`
}

func (ObikeExt) Kind() string { return "obike" }

type LimeExt struct {
	PlateNumber  string `json:"plateNumber,omitempty"`
	BatteryLevel string `json:"batteryLevel,omitempty"`
	Status       string `json:"status,omitempty"`
}

func (LimeExt) Kind() string { return "lime" }

// GBFSExt carries the free_bike_status fields shared by GBFS publishers.
type GBFSExt struct {
	IsReserved   bool `json:"isReserved"`
	IsDisabled   bool `json:"isDisabled"`
	BatteryLevel *int `json:"batteryLevel,omitempty"`
}

func (GBFSExt) Kind() string { return "gbfs" }

func newExtension(kind string) (Extension, error) {
	switch kind {
	case "indigowheel":
		return &IndigoWheelExt{}, nil
	case "ofo":
		return &OfoExt{}, nil
	case "mobike":
		return &MobikeExt{}, nil
	case "obike":
		return &ObikeExt{}, nil
	case "lime":
		return &LimeExt{}, nil
	case "gbfs":
		return &GBFSExt{}, nil
	default:
		return nil, fmt.Errorf("unknown vehicle extension kind %q", kind)
	}
}

// deref turns the pointer produced by newExtension back into the value variant
func deref(e Extension) Extension {
	switch t := e.(type) {
	case *IndigoWheelExt:
		return *t
	case *OfoExt:
		return *t
	case *MobikeExt:
		return *t
	case *ObikeExt:
		return *t
	case *LimeExt:
		return *t
	case *GBFSExt:
		return *t
	default:
		return e
	}
}

type vehicleJSON struct {
	ID         string          `json:"id"`
	Lat        float64         `json:"lat"`
	Lng        float64         `json:"lng"`
	ProviderID string          `json:"provider"`
	Type       VehicleType     `json:"type"`
	Attributes []Attribute     `json:"attributes"`
	Kind       string          `json:"kind,omitempty"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

func (v Vehicle) MarshalJSON() ([]byte, error) {
	out := vehicleJSON{
		ID:         v.ID,
		Lat:        v.Lat,
		Lng:        v.Lng,
		ProviderID: v.ProviderID,
		Type:       v.Type,
		Attributes: v.Attributes,
	}
	if out.Attributes == nil {
		out.Attributes = []Attribute{}
	}
	if v.Ext != nil {
		b, err := json.Marshal(v.Ext)
		if err != nil {
			return nil, fmt.Errorf("marshal %s extension: %w", v.Ext.Kind(), err)
		}
		out.Kind = v.Ext.Kind()
		out.Extra = b
	}
	return json.Marshal(out)
}

func (v *Vehicle) UnmarshalJSON(b []byte) error {
	var in vehicleJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("decode vehicle: %w", err)
	}
	*v = Vehicle{
		ID:         in.ID,
		Lat:        in.Lat,
		Lng:        in.Lng,
		ProviderID: in.ProviderID,
		Type:       in.Type,
		Attributes: in.Attributes,
	}
	if v.Attributes == nil {
		v.Attributes = []Attribute{}
	}
	if in.Kind == "" {
		return nil
	}
	ext, err := newExtension(in.Kind)
	if err != nil {
		return err
	}
	if len(in.Extra) > 0 {
		if err := json.Unmarshal(in.Extra, ext); err != nil {
			return fmt.Errorf("decode %s extension: %w", in.Kind, err)
		}
	}
	v.Ext = deref(ext)
	return nil
}
