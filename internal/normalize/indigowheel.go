package normalize

import "github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"

type indigoWheelPayload struct {
	Data []struct {
		PlateNo   flexID     `json:"plate_no"`
		Latitude  *flexFloat `json:"latitude"`
		Longitude *flexFloat `json:"longitude"`
		Discount  int        `json:"discount"`
		Outside   int        `json:"outside"`
	} `json:"data"`
}

// every IndigoWheel bike has gears
func indigoWheel(providerID string, raw []byte) ([]model.Vehicle, error) {
	var p indigoWheelPayload
	if err := decode(FormatIndigoWheel, raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Vehicle, 0, len(p.Data))
	for _, b := range p.Data {
		lat, lng, ok := point(b.Latitude, b.Longitude)
		if b.PlateNo == "" || !ok {
			continue
		}
		out = append(out, model.Vehicle{
			ID:         string(b.PlateNo),
			Lat:        lat,
			Lng:        lng,
			ProviderID: providerID,
			Type:       model.VehicleBike,
			Attributes: attrs(model.AttrGears),
			Ext: model.IndigoWheelExt{
				PlateNo:  string(b.PlateNo),
				Discount: b.Discount,
				Outside:  b.Outside,
			},
		})
	}
	return out, nil
}
