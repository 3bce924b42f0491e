package domain

import "context"

// Place is a geocoding result. The zero value means no match.
type Place struct {
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Confidence float64 `json:"confidence"`
}

// Found reports whether the geocoder returned a match.
func (p Place) Found() bool { return p.Address != "" }

// Geocoder resolves place names and coordinates.
type Geocoder interface {
	ForwardGeocode(ctx context.Context, query string) (Place, error)
	ReverseGeocode(ctx context.Context, lat, lon float64) (Place, error)
}
