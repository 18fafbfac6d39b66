package normalize

import (
	"strings"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
)

type limePayload struct {
	Data struct {
		Attributes struct {
			Bikes []struct {
				ID         flexID `json:"id"`
				Attributes struct {
					Latitude     *flexFloat `json:"latitude"`
					Longitude    *flexFloat `json:"longitude"`
					PlateNumber  flexID     `json:"plate_number"`
					BatteryLevel string     `json:"battery_level"`
					Status       string     `json:"status"`
					TypeName     string     `json:"type_name"`
				} `json:"attributes"`
			} `json:"bikes"`
		} `json:"attributes"`
	} `json:"data"`
}

func lime(providerID string, raw []byte) ([]model.Vehicle, error) {
	var p limePayload
	if err := decode(FormatLime, raw, &p); err != nil {
		return nil, err
	}
	bikes := p.Data.Attributes.Bikes
	out := make([]model.Vehicle, 0, len(bikes))
	for _, b := range bikes {
		a := b.Attributes
		lat, lng, ok := point(a.Latitude, a.Longitude)
		if b.ID == "" || !ok {
			continue
		}
		typ, as := limeKind(a.TypeName)
		out = append(out, model.Vehicle{
			ID:         string(b.ID),
			Lat:        lat,
			Lng:        lng,
			ProviderID: providerID,
			Type:       typ,
			Attributes: as,
			Ext: model.LimeExt{
				PlateNumber:  string(a.PlateNumber),
				BatteryLevel: a.BatteryLevel,
				Status:       a.Status,
			},
		})
	}
	return out, nil
}

// unknown type names fall back to a plain bike
func limeKind(typeName string) (model.VehicleType, []model.Attribute) {
	switch strings.ToLower(strings.TrimSpace(typeName)) {
	case "scooter":
		return model.VehicleScooter, attrs(model.AttrElectric)
	case "electric", "ebike", "e-bike":
		return model.VehicleBike, attrs(model.AttrElectric, model.AttrGears)
	default:
		return model.VehicleBike, attrs(model.AttrGears)
	}
}
