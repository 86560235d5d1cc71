package collab

import "context"

// NullGeoResolver is the default GeoResolver: geo-IP lookup is an external
// collaborator out of scope for this server (spec.md §1), so the shipped
// default simply reports an unknown location rather than guessing.
type NullGeoResolver struct{}

func (NullGeoResolver) Resolve(ctx context.Context, remoteAddr string) (Geo, error) {
	return Geo{}, nil
}
