package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

// ProfileService implements ports.ProfileReconciler.
type ProfileService struct {
	store ports.ProfileStore
	log   zerolog.Logger
}

// NewProfileService returns a ProfileService backed by store.
func NewProfileService(store ports.ProfileStore, log zerolog.Logger) *ProfileService {
	return &ProfileService{store: store, log: log}
}

// EnsureProfile creates the identity's profile row unless it already exists.
// The insert is a single upsert that ignores duplicates, so concurrent and
// repeated calls never produce a second row.
func (s *ProfileService) EnsureProfile(ctx context.Context, identity domain.Identity) error {
	if identity.ID == "" {
		return domain.NewError(domain.KindProfileReconcile, "ensure profile", domain.ErrNotAuthenticated)
	}

	created, err := s.store.InsertIfAbsent(ctx, domain.NewProfileFor(identity))
	if err != nil {
		return domain.NewError(domain.KindProfileReconcile, "ensure profile", err)
	}
	if created {
		s.log.Info().Str("user_id", identity.ID).Msg("profile created")
	}
	return nil
}
