package normalize

import "github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"

// mobike reports coordinates as distX (lng) / distY (lat)
type mobikePayload struct {
	Object []struct {
		DistID   flexID     `json:"distId"`
		DistX    *flexFloat `json:"distX"`
		DistY    *flexFloat `json:"distY"`
		DistNum  int        `json:"distNum"`
		Distance flexFloat  `json:"distance"`
		BikeType int        `json:"biketype"`
	} `json:"object"`
}

// biketype 999 marks the electric fleet
const mobikeElectricType = 999

func mobike(providerID string, raw []byte) ([]model.Vehicle, error) {
	var p mobikePayload
	if err := decode(FormatMobike, raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Vehicle, 0, len(p.Object))
	for _, b := range p.Object {
		lat, lng, ok := point(b.DistY, b.DistX)
		if b.DistID == "" || !ok {
			continue
		}
		a := attrs()
		if b.BikeType == mobikeElectricType {
			a = attrs(model.AttrElectric)
		}
		out = append(out, model.Vehicle{
			ID:         string(b.DistID),
			Lat:        lat,
			Lng:        lng,
			ProviderID: providerID,
			Type:       model.VehicleBike,
			Attributes: a,
			Ext: model.MobikeExt{
				BikeType: b.BikeType,
				Distance: float64(b.Distance),
				DistNum:  b.DistNum,
			},
		})
	}
	return out, nil
}
