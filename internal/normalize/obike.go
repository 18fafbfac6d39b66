package normalize

import "github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"

type obikePayload struct {
	Data struct {
		List []struct {
			ID        flexID     `json:"id"`
			IMEI      flexID     `json:"imei"`
			Latitude  *flexFloat `json:"latitude"`
			Longitude *flexFloat `json:"longitude"`
			Battery   int        `json:"battery"`
			Helmet    flexBool   `json:"helmet"`
			CountryID int        `json:"countryId"`
		} `json:"list"`
	} `json:"data"`
}

func obike(providerID string, raw []byte) ([]model.Vehicle, error) {
	var p obikePayload
	if err := decode(FormatObike, raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Vehicle, 0, len(p.Data.List))
	for _, b := range p.Data.List {
		lat, lng, ok := point(b.Latitude, b.Longitude)
		if b.ID == "" || !ok {
			continue
		}
		out = append(out, model.Vehicle{
			ID:         string(b.ID),
			Lat:        lat,
			Lng:        lng,
			ProviderID: providerID,
			Type:       model.VehicleBike,
			Attributes: attrs(model.AttrBasket),
			Ext: model.ObikeExt{
				IMEI:      string(b.IMEI),
				Battery:   b.Battery,
				Helmet:    bool(b.Helmet),
				CountryID: b.CountryID,
			},
		})
	}
	return out, nil
}
