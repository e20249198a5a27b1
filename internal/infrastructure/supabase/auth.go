package supabase

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

// Auth implements ports.AuthGateway against GoTrue. It owns the in-process
// session, persists it through a SessionStore and fans session transitions
// out to listeners.
type Auth struct {
	client *Client
	store  ports.SessionStore
	now    func() time.Time
	log    zerolog.Logger

	loadOnce sync.Once
	loadErr  error

	mu        sync.RWMutex
	session   *domain.Session
	listeners map[int]ports.AuthListener
	nextID    int
}

// NewAuth creates an Auth and makes it the bearer token source for client.
func NewAuth(client *Client, store ports.SessionStore, log zerolog.Logger) *Auth {
	a := &Auth{
		client:    client,
		store:     store,
		now:       time.Now,
		log:       log,
		listeners: make(map[int]ports.AuthListener),
	}
	client.setBearer(a.accessToken)
	return a
}

// GetSession returns the current session, loading the persisted one on first
// use. An expired session is refreshed; if the backend rejects the refresh
// the session is dropped and nil is returned.
func (a *Auth) GetSession(ctx context.Context) (*domain.Session, error) {
	if err := a.load(ctx); err != nil {
		return nil, err
	}

	s := a.current()
	if s == nil {
		return nil, nil
	}
	if !s.ExpiresWithin(a.now(), 0) {
		return s, nil
	}

	refreshed, err := a.refresh(ctx, s.RefreshToken)
	if err != nil {
		if isRejected(err) {
			return nil, nil
		}
		return nil, err
	}
	return refreshed, nil
}

// SignUp creates an account. When email confirmation is enabled the backend
// answers with the user only and AuthResult.Session is nil.
func (a *Auth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*ports.AuthResult, error) {
	res, err := call(ctx, a.client, func() (*types.SignupResponse, error) {
		return a.client.authAPI("").Signup(types.SignupRequest{Email: email, Password: password, Data: metadata})
	})
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", authError(err))
	}
	if res.AccessToken == "" {
		return &ports.AuthResult{User: sessionUser(res.User)}, nil
	}

	user := res.User
	if res.Session.User.ID != uuid.Nil {
		user = res.Session.User
	}
	s := a.sessionFromGrant(grant{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    int64(res.ExpiresAt),
		ExpiresIn:    int64(res.ExpiresIn),
		User:         sessionUser(user),
	})
	a.setSession(ctx, s, domain.EventSignedIn)
	return &ports.AuthResult{User: s.User, Session: s.Clone()}, nil
}

// SignInWithPassword exchanges credentials for a session.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*ports.AuthResult, error) {
	res, err := call(ctx, a.client, func() (*types.TokenResponse, error) {
		return a.client.authAPI("").SignInWithEmailPassword(email, password)
	})
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", authError(err))
	}

	s := a.sessionFromGrant(grantOf(res))
	a.setSession(ctx, s, domain.EventSignedIn)
	return &ports.AuthResult{User: s.User, Session: s.Clone()}, nil
}

// SignOut revokes the session at the backend and drops it locally. A session
// the backend no longer knows counts as signed out.
func (a *Auth) SignOut(ctx context.Context) error {
	_ = a.load(ctx)
	if s := a.current(); s != nil {
		_, err := call(ctx, a.client, func() (struct{}, error) {
			return struct{}{}, a.client.authAPI(s.AccessToken).Logout()
		})
		if err = authError(err); err != nil && !isRejected(err) {
			return fmt.Errorf("sign out: %w", err)
		}
	}
	a.setSession(ctx, nil, domain.EventSignedOut)
	return nil
}

// OnAuthStateChange registers l for every session transition.
func (a *Auth) OnAuthStateChange(l ports.AuthListener) ports.Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = l
	return unsubscribeFunc(func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
		return nil
	})
}

// AutoRefresh refreshes the session whenever it is within margin of expiry,
// checking every interval until ctx is cancelled. A refresh the backend
// rejects ends the session.
func (a *Auth) AutoRefresh(ctx context.Context, interval, margin time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshIfExpiring(ctx, margin)
		}
	}
}

func (a *Auth) refreshIfExpiring(ctx context.Context, margin time.Duration) {
	if err := a.load(ctx); err != nil {
		return
	}
	s := a.current()
	if s == nil || !s.ExpiresWithin(a.now(), margin) {
		return
	}
	if _, err := a.refresh(ctx, s.RefreshToken); err != nil && !isRejected(err) {
		a.log.Warn().Err(err).Msg("session refresh failed, will retry")
	}
}

// refresh exchanges a refresh token for a new session. When the backend
// rejects the token the local session is cleared and listeners see a
// sign-out.
func (a *Auth) refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		a.setSession(ctx, nil, domain.EventSignedOut)
		return nil, &APIError{Status: http.StatusUnauthorized, Code: "refresh_token_not_found", Message: "no refresh token"}
	}

	res, err := call(ctx, a.client, func() (*types.TokenResponse, error) {
		return a.client.authAPI("").RefreshToken(refreshToken)
	})
	if err != nil {
		err = authError(err)
		if isRejected(err) {
			a.log.Info().Err(err).Msg("refresh rejected, signing out")
			a.setSession(ctx, nil, domain.EventSignedOut)
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	s := a.sessionFromGrant(grantOf(res))
	a.setSession(ctx, s, domain.EventTokenRefreshed)
	return s.Clone(), nil
}

// load restores the persisted session once.
func (a *Auth) load(ctx context.Context) error {
	a.loadOnce.Do(func() {
		if a.store == nil {
			return
		}
		s, err := a.store.Load(ctx)
		if err != nil {
			a.loadErr = fmt.Errorf("load persisted session: %w", err)
			return
		}
		a.mu.Lock()
		if a.session == nil {
			a.session = s
		}
		a.mu.Unlock()
	})
	return a.loadErr
}

// setSession replaces the session, persists it and notifies listeners.
func (a *Auth) setSession(ctx context.Context, s *domain.Session, event domain.AuthEvent) {
	a.mu.Lock()
	prev := a.session
	a.session = s
	listeners := make([]ports.AuthListener, 0, len(a.listeners))
	for _, l := range a.listeners {
		listeners = append(listeners, l)
	}
	a.mu.Unlock()

	if s == nil && prev == nil && event == domain.EventSignedOut {
		return
	}
	a.persist(ctx, s)

	for _, l := range listeners {
		l(event, s.Clone())
	}
}

func (a *Auth) persist(ctx context.Context, s *domain.Session) {
	if a.store == nil {
		return
	}
	var err error
	if s == nil {
		err = a.store.Clear(ctx)
	} else {
		err = a.store.Save(ctx, s)
	}
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to persist session")
	}
}

func (a *Auth) current() *domain.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session.Clone()
}

func (a *Auth) accessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return ""
	}
	return a.session.AccessToken
}

// grant is the token payload shared by sign-up, sign-in and refresh.
type grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	ExpiresIn    int64
	User         domain.SessionUser
}

func grantOf(res *types.TokenResponse) grant {
	return grant{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    int64(res.ExpiresAt),
		ExpiresIn:    int64(res.ExpiresIn),
		User:         sessionUser(res.User),
	}
}

func sessionUser(u types.User) domain.SessionUser {
	su := domain.SessionUser{Email: u.Email, Metadata: u.UserMetadata}
	if u.ID != uuid.Nil {
		su.ID = u.ID.String()
	}
	return su
}

// sessionFromGrant builds a session. Expiry comes from the access token's
// exp claim, falling back to expires_at and then expires_in.
func (a *Auth) sessionFromGrant(g grant) *domain.Session {
	s := &domain.Session{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		User:         g.User,
	}
	switch exp := tokenExpiry(g.AccessToken); {
	case !exp.IsZero():
		s.ExpiresAt = exp
	case g.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(g.ExpiresAt, 0).UTC()
	case g.ExpiresIn > 0:
		s.ExpiresAt = a.now().Add(time.Duration(g.ExpiresIn) * time.Second).UTC()
	}
	return s
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client only needs it to schedule refreshes.
func tokenExpiry(accessToken string) time.Time {
	if accessToken == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.UTC()
}

type unsubscribeFunc func() error

func (f unsubscribeFunc) Unsubscribe() error { return f() }
