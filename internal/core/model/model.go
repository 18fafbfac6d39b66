// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strings"
)

type VehicleType string

const (
	VehicleBike    VehicleType = "BIKE"
	VehicleScooter VehicleType = "SCOOTER"
	VehicleCar     VehicleType = "CAR"
)

type Attribute string

const (
	AttrGears     Attribute = "GEARS"
	AttrElectric  Attribute = "ELECTRIC"
	AttrBasket    Attribute = "BASKET"
	AttrChildSeat Attribute = "CHILD_SEAT"
)

// Region is the (city, country) pair a coordinate geocodes to.
type Region struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// UnknownRegion is returned when geocoding fails or finds nothing.
var UnknownRegion = Region{}

func (r Region) IsUnknown() bool {
	return strings.TrimSpace(r.Country) == "" && strings.TrimSpace(r.City) == ""
}

// Label renders the region the way clients display it
func (r Region) Label() string {
	city := strings.TrimSpace(r.City)
	country := strings.TrimSpace(r.Country)
	switch {
	case country == "" && city == "":
		return "unknown"
	case city == "":
		return country
	case country == "":
		return city
	default:
		return city + ", " + country
	}
}

type RegionRef struct {
	Country string `json:"country"`
	City    string `json:"city,omitempty"`
}

type Provider struct {
	ID          string      `json:"name"`
	DisplayName string      `json:"displayName"`
	Website     string      `json:"website,omitempty"`
	Global      bool        `json:"-"`
	Regions     []RegionRef `json:"-"`
}

type Capacities struct {
	Location        string   `json:"location"`
	DefaultLanguage string   `json:"defaultLanguage"`
	Providers       []string `json:"providers"`
}

func ValidLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func CheckLatLng(lat, lng float64) error {
	if !(lat >= -90 && lat <= 90) {
		return fmt.Errorf("latitude %v out of range [-90,90]", lat)
	}
	if !(lng >= -180 && lng <= 180) {
		return fmt.Errorf("longitude %v out of range [-180,180]", lng)
	}
	return nil
}
