package normalize

import "github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"

// GBFS free_bike_status.json
type gbfsPayload struct {
	Data struct {
		Bikes []struct {
			BikeID       flexID     `json:"bike_id"`
			Lat          *flexFloat `json:"lat"`
			Lon          *flexFloat `json:"lon"`
			IsReserved   flexBool   `json:"is_reserved"`
			IsDisabled   flexBool   `json:"is_disabled"`
			BatteryLevel *int       `json:"battery_level"`
		} `json:"bikes"`
	} `json:"data"`
}

// Disabled bikes cannot be rented and are skipped.
func gbfs(providerID string, raw []byte) ([]model.Vehicle, error) {
	var p gbfsPayload
	if err := decode(FormatGBFS, raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Vehicle, 0, len(p.Data.Bikes))
	for _, b := range p.Data.Bikes {
		lat, lng, ok := point(b.Lat, b.Lon)
		if b.BikeID == "" || !ok || bool(b.IsDisabled) {
			continue
		}
		out = append(out, model.Vehicle{
			ID:         string(b.BikeID),
			Lat:        lat,
			Lng:        lng,
			ProviderID: providerID,
			Type:       model.VehicleBike,
			Attributes: attrs(),
			Ext: model.GBFSExt{
				IsReserved:   bool(b.IsReserved),
				IsDisabled:   bool(b.IsDisabled),
				BatteryLevel: b.BatteryLevel,
			},
		})
	}
	return out, nil
}
