package normalize

import "github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"

type ofoPayload struct {
	Values struct {
		Cars []struct {
			CarNo         flexID     `json:"carno"`
			Lat           *flexFloat `json:"lat"`
			Lng           *flexFloat `json:"lng"`
			OrdinaryCount int        `json:"ordinaryCount"`
			BomNum        flexID     `json:"bomNum"`
		} `json:"cars"`
	} `json:"values"`
}

func ofo(providerID string, raw []byte) ([]model.Vehicle, error) {
	var p ofoPayload
	if err := decode(FormatOfo, raw, &p); err != nil {
		return nil, err
	}
	out := make([]model.Vehicle, 0, len(p.Values.Cars))
	for _, c := range p.Values.Cars {
		lat, lng, ok := point(c.Lat, c.Lng)
		if c.CarNo == "" || !ok {
			continue
		}
		out = append(out, model.Vehicle{
			ID:         string(c.CarNo),
			Lat:        lat,
			Lng:        lng,
			ProviderID: providerID,
			Type:       model.VehicleBike,
			Attributes: attrs(),
			Ext: model.OfoExt{
				CarNo:         string(c.CarNo),
				OrdinaryCount: c.OrdinaryCount,
				BomNum:        string(c.BomNum),
			},
		})
	}
	return out, nil
}
