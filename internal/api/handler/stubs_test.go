package handler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Session service
// ---------------------------------------------------------------------------

type stubSessionService struct {
	snap       domain.SessionSnapshot
	registerFn func(ctx context.Context, email, password, displayName string) (*domain.Identity, error)
	loginFn    func(ctx context.Context, email, password string) (*domain.Identity, error)
	logoutFn   func(ctx context.Context) error
}

func (s *stubSessionService) Restore(context.Context) domain.SessionSnapshot { return s.snap }

func (s *stubSessionService) Register(ctx context.Context, email, password, displayName string) (*domain.Identity, error) {
	return s.registerFn(ctx, email, password, displayName)
}

func (s *stubSessionService) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubSessionService) Logout(ctx context.Context) error { return s.logoutFn(ctx) }

func (s *stubSessionService) Current() domain.SessionSnapshot { return s.snap }

func (s *stubSessionService) Subscribe(func(domain.SessionSnapshot)) func() { return func() {} }

func signedIn(id, email, name string) domain.SessionSnapshot {
	return domain.SessionSnapshot{
		State:    domain.StateAuthenticated,
		Identity: &domain.Identity{ID: id, Email: email, DisplayName: name},
		Revision: 1,
	}
}

// ---------------------------------------------------------------------------
// Post service
// ---------------------------------------------------------------------------

type stubPostService struct {
	listAllFn      func(ctx context.Context) ([]domain.DisplayPost, error)
	listByAuthorFn func(ctx context.Context, authorID string) ([]domain.DisplayPost, error)
	createFn       func(ctx context.Context, identity domain.Identity, in ports.CreatePostInput) (*domain.Post, error)
	deleteFn       func(ctx context.Context, in ports.DeletePostInput) error
}

func (s *stubPostService) ListAll(ctx context.Context) ([]domain.DisplayPost, error) {
	return s.listAllFn(ctx)
}

func (s *stubPostService) ListByAuthor(ctx context.Context, authorID string) ([]domain.DisplayPost, error) {
	return s.listByAuthorFn(ctx, authorID)
}

func (s *stubPostService) Create(ctx context.Context, identity domain.Identity, in ports.CreatePostInput) (*domain.Post, error) {
	return s.createFn(ctx, identity, in)
}

func (s *stubPostService) Delete(ctx context.Context, in ports.DeletePostInput) error {
	return s.deleteFn(ctx, in)
}

// ---------------------------------------------------------------------------
// Feed service
// ---------------------------------------------------------------------------

type stubFeedService struct {
	mu     sync.Mutex
	scopes []domain.FeedScope
	feed   *stubFeed
	err    error
}

func (s *stubFeedService) Open(_ context.Context, scope domain.FeedScope) (ports.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes = append(s.scopes, scope)
	if s.err != nil {
		return nil, s.err
	}
	return s.feed, nil
}

func (s *stubFeedService) openedScopes() []domain.FeedScope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FeedScope(nil), s.scopes...)
}

type stubFeed struct {
	updates   chan domain.FeedSnapshot
	refreshes chan struct{}
	closed    chan struct{}
	once      sync.Once
}

func newStubFeed() *stubFeed {
	return &stubFeed{
		updates:   make(chan domain.FeedSnapshot, 4),
		refreshes: make(chan struct{}, 4),
		closed:    make(chan struct{}),
	}
}

func (f *stubFeed) Snapshot() domain.FeedSnapshot { return domain.FeedSnapshot{} }

func (f *stubFeed) Refresh(context.Context) error {
	select {
	case f.refreshes <- struct{}{}:
	default:
	}
	return nil
}

func (f *stubFeed) Watch() (<-chan domain.FeedSnapshot, func()) {
	return f.updates, func() {}
}

func (f *stubFeed) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

var errBackend = errors.New("backend unavailable")

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }
