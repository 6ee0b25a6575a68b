package authz

import (
	"context"
	"fmt"

	"github.com/clinicore/clinic-booking/internal/user"
)

// LocationResolver computes the set of location IDs a user may act within.
type LocationResolver struct {
	locations LocationDirectory
}

func NewLocationResolver(locations LocationDirectory) *LocationResolver {
	return &LocationResolver{locations: locations}
}

// AccessibleLocations returns the location IDs the user may act within.
//
// SUPER_ADMIN with no explicit assignment list resolves to the
// organization's active locations through a live lookup, so a location
// created a moment ago is visible immediately. Everyone else gets exactly
// the explicit assignment list: an empty list means zero location-scoped
// access, never "all".
func (r *LocationResolver) AccessibleLocations(ctx context.Context, u *user.User) ([]string, error) {
	if u == nil {
		return nil, nil
	}

	if u.UnrestrictedLocations() && u.OrganizationID != nil {
		ids, err := r.locations.ActiveLocationIDs(ctx, u.OrganizationID.String())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
		}
		return ids, nil
	}

	return u.AssignedLocations(), nil
}

// CanAccessLocation reports membership of one location in the accessible set.
func (r *LocationResolver) CanAccessLocation(ctx context.Context, u *user.User, locationID string) (bool, error) {
	ids, err := r.AccessibleLocations(ctx, u)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == locationID {
			return true, nil
		}
	}
	return false, nil
}
