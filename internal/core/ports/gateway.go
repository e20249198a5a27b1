package ports

import (
	"context"

	"github.com/framez/framez-core/internal/core/domain"
)

// Subscription is a handle on a long-lived listener.
type Subscription interface {
	Unsubscribe() error
}

// AuthResult is returned by sign-up and sign-in. Session is nil when the
// backend requires confirmation before issuing one.
type AuthResult struct {
	User    domain.SessionUser
	Session *domain.Session
}

// AuthListener receives session transitions. session is nil on sign-out.
type AuthListener func(event domain.AuthEvent, session *domain.Session)

// AuthGateway is the backend authentication service.
type AuthGateway interface {
	// GetSession returns the current session, or nil when there is none.
	GetSession(ctx context.Context) (*domain.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*AuthResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResult, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(listener AuthListener) Subscription
}

// SessionStore persists the session between process runs.
type SessionStore interface {
	// Load returns the persisted session, or nil when none is stored.
	Load(ctx context.Context) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Clear(ctx context.Context) error
}

// ProfileStore is the profiles table.
type ProfileStore interface {
	// InsertIfAbsent atomically inserts p unless a row with the same id
	// exists. created reports whether a row was written.
	InsertIfAbsent(ctx context.Context, p domain.Profile) (created bool, err error)
}

// PostStore is the posts table joined with author profiles.
type PostStore interface {
	// List returns posts newest first. An empty authorID lists every post.
	List(ctx context.Context, authorID string) ([]domain.PostWithAuthor, error)
	// Insert writes p and fills in its backend-assigned id.
	Insert(ctx context.Context, p *domain.Post) error
	Delete(ctx context.Context, id string) error
}

// ObjectStorage is the image bucket.
type ObjectStorage interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	PublicURL(path string) string
	Remove(ctx context.Context, paths ...string) error
}

// ChangeHandler receives change notifications.
type ChangeHandler func(event domain.ChangeEvent)

// ChangeStream delivers row change notifications.
type ChangeStream interface {
	Subscribe(ctx context.Context, filter domain.ChangeFilter, handler ChangeHandler) (Subscription, error)
}

// ActivityRecorder keeps an audit trail of user actions.
type ActivityRecorder interface {
	Record(ctx context.Context, event domain.ActivityEvent) error
}
