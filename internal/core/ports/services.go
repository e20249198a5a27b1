package ports

import (
	"context"

	"github.com/framez/framez-core/internal/core/domain"
)

// SessionService owns the authentication lifecycle.
type SessionService interface {
	Restore(ctx context.Context) domain.SessionSnapshot
	Register(ctx context.Context, email, password, displayName string) (*domain.Identity, error)
	Login(ctx context.Context, email, password string) (*domain.Identity, error)
	Logout(ctx context.Context) error
	Current() domain.SessionSnapshot
	Subscribe(fn func(domain.SessionSnapshot)) (cancel func())
}

// ProfileReconciler guarantees a profile row exists for an identity.
type ProfileReconciler interface {
	EnsureProfile(ctx context.Context, identity domain.Identity) error
}

// CreatePostInput carries a new post. Image is optional.
type CreatePostInput struct {
	Caption string
	Image   *domain.ImageAsset
}

// DeletePostInput identifies a post to delete. RequesterID is the current
// identity; Confirmed records the user's explicit confirmation.
type DeletePostInput struct {
	PostID      string
	AuthorID    string
	ImageURL    string
	RequesterID string
	Confirmed   bool
}

// PostLister is the read side used by feeds.
type PostLister interface {
	ListAll(ctx context.Context) ([]domain.DisplayPost, error)
	ListByAuthor(ctx context.Context, authorID string) ([]domain.DisplayPost, error)
}

// PostService is the post repository.
type PostService interface {
	PostLister
	Create(ctx context.Context, identity domain.Identity, input CreatePostInput) (*domain.Post, error)
	Delete(ctx context.Context, input DeletePostInput) error
}

// Feed is a live, self-refreshing list of posts for one scope.
type Feed interface {
	Snapshot() domain.FeedSnapshot
	Refresh(ctx context.Context) error
	Watch() (updates <-chan domain.FeedSnapshot, cancel func())
	Close() error
}

// FeedService opens live feeds.
type FeedService interface {
	Open(ctx context.Context, scope domain.FeedScope) (Feed, error)
}

// RefreshQueue runs refetch jobs, serialized per key.
type RefreshQueue interface {
	Enqueue(key string, job func(ctx context.Context))
}
