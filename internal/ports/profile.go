package ports

import "github.com/roastwire/roastwire/internal/domain"

// ProfileSource hands stored roast profiles to the replay engine. Profile
// persistence and CRUD are external; roastwire only reads at this
// boundary.
type ProfileSource interface {
	Load(profileID string) (*domain.Profile, error)
}
