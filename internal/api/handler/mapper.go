package handler

import (
	"time"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/service"
)

func toIdentityResponse(id *domain.Identity) *identityResponse {
	if id == nil {
		return nil
	}
	return &identityResponse{
		ID:          id.ID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		AvatarURL:   id.AvatarURL,
	}
}

func toSessionResponse(s domain.SessionSnapshot) sessionResponse {
	return sessionResponse{
		State:    string(s.State),
		Identity: toIdentityResponse(s.Identity),
		Revision: s.Revision,
	}
}

func toPostResponse(p domain.DisplayPost, viewer *domain.Identity, now time.Time) postResponse {
	return postResponse{
		ID:              p.ID,
		Caption:         p.Caption,
		ImageURL:        p.ImageURL,
		UserID:          p.UserID,
		CreatedAt:       p.CreatedAt,
		AuthorName:      p.AuthorName,
		AuthorAvatarURL: p.AuthorAvatarURL,
		Age:             domain.RelativeAge(p.CreatedAt, now),
		CanDelete:       service.CanDelete(p, viewer),
	}
}

func toPostResponses(posts []domain.DisplayPost, viewer *domain.Identity, now time.Time) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p, viewer, now))
	}
	return out
}

func toFeedFrame(s domain.FeedSnapshot, viewer *domain.Identity, now time.Time) feedFrame {
	return feedFrame{
		Scope:     s.Scope.Key(),
		Revision:  s.Revision,
		FetchedAt: s.FetchedAt,
		Posts:     toPostResponses(s.Posts, viewer, now),
	}
}
