package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

// SessionManager owns the authentication lifecycle and is the single writer
// of the current identity. Readers get immutable snapshots.
type SessionManager struct {
	auth     ports.AuthGateway
	profiles ports.ProfileReconciler
	activity ports.ActivityRecorder
	log      zerolog.Logger

	mu       sync.RWMutex
	snapshot domain.SessionSnapshot
	watchers map[int]func(domain.SessionSnapshot)
	nextID   int
	authSub  ports.Subscription
}

// NewSessionManager returns a SessionManager in the loading state.
func NewSessionManager(
	auth ports.AuthGateway,
	profiles ports.ProfileReconciler,
	activity ports.ActivityRecorder,
	log zerolog.Logger,
) *SessionManager {
	return &SessionManager{
		auth:     auth,
		profiles: profiles,
		activity: activity,
		log:      log,
		snapshot: domain.SessionSnapshot{State: domain.StateLoading},
		watchers: make(map[int]func(domain.SessionSnapshot)),
	}
}

// Restore looks up an existing session once at startup. Loading always
// completes: a gateway failure is treated as no session.
func (m *SessionManager) Restore(ctx context.Context) domain.SessionSnapshot {
	session, err := m.auth.GetSession(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("session restore failed, continuing signed out")
		session = nil
	}
	m.applySession(session)
	return m.Current()
}

// Start subscribes to backend session transitions. The subscription lives
// until Close.
func (m *SessionManager) Start() {
	m.mu.RLock()
	started := m.authSub != nil
	m.mu.RUnlock()
	if started {
		return
	}

	// The gateway may call back synchronously, so no lock is held here.
	sub := m.auth.OnAuthStateChange(m.handleAuthEvent)

	m.mu.Lock()
	if m.authSub != nil {
		m.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	m.authSub = sub
	m.mu.Unlock()
}

// Close releases the backend subscription and drops all watchers.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	sub := m.authSub
	m.authSub = nil
	m.watchers = make(map[int]func(domain.SessionSnapshot))
	m.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

func (m *SessionManager) handleAuthEvent(event domain.AuthEvent, session *domain.Session) {
	m.log.Debug().Str("event", string(event)).Bool("has_session", session != nil).Msg("auth state change")
	if event == domain.EventSignedOut {
		session = nil
	}
	m.applySession(session)
}

// Register creates an account and reconciles its profile. When the backend
// issues a session right away the manager becomes authenticated. The
// requested display name is used even if the backend does not echo it back.
func (m *SessionManager) Register(ctx context.Context, email, password, displayName string) (*domain.Identity, error) {
	res, err := m.auth.SignUp(ctx, email, password, map[string]any{"display_name": displayName})
	if err != nil {
		return nil, domain.NewError(domain.KindAuth, "register", err)
	}

	user := res.User.WithDisplayName(displayName)
	identity := domain.NewIdentity(user)
	m.reconcile(ctx, identity)
	m.record(ctx, domain.ActivitySignedUp, identity.ID)

	if res.Session != nil {
		session := res.Session.Clone()
		session.User = session.User.WithDisplayName(displayName)
		m.adoptSession(session)
	} else {
		m.log.Info().Str("user_id", identity.ID).Msg("account created, awaiting confirmation")
	}
	return &identity, nil
}

// Login signs in with a password and reconciles the profile in case an
// earlier registration left it missing.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	res, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, domain.NewError(domain.KindAuth, "login", err)
	}

	identity := domain.NewIdentity(res.User)
	m.reconcile(ctx, identity)
	m.record(ctx, domain.ActivitySignedIn, identity.ID)

	if res.Session != nil {
		m.adoptSession(res.Session)
	}
	return &identity, nil
}

// Logout ends the session at the backend and clears the identity.
func (m *SessionManager) Logout(ctx context.Context) error {
	current := m.Current()
	if !current.Authenticated() {
		return domain.NewError(domain.KindAuth, "logout", domain.ErrNotAuthenticated)
	}

	if err := m.auth.SignOut(ctx); err != nil {
		return domain.NewError(domain.KindAuth, "logout", err)
	}

	m.applySession(nil)
	m.record(ctx, domain.ActivitySignedOut, current.Identity.ID)
	return nil
}

// Current returns the latest snapshot.
func (m *SessionManager) Current() domain.SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Subscribe registers fn for every new revision. fn is called with the
// current snapshot immediately.
func (m *SessionManager) Subscribe(fn func(domain.SessionSnapshot)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	snap := m.snapshot
	m.mu.Unlock()

	fn(snap)
	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// applySession moves the state machine to match session. Recomputing the
// identity while authenticated is not a transition.
func (m *SessionManager) applySession(session *domain.Session) {
	next := domain.StateUnauthenticated
	var identity *domain.Identity
	if session != nil && session.User.ID != "" {
		id := domain.NewIdentity(session.User)
		identity = &id
		next = domain.StateAuthenticated
	}

	m.mu.Lock()
	cur := m.snapshot.State
	if cur != next && !cur.CanTransitionTo(next) {
		m.mu.Unlock()
		m.log.Error().Err(fmt.Errorf("%w (from %s to %s)", domain.ErrInvalidTransition, cur, next)).Msg("session transition rejected")
		return
	}
	if cur == next && next == domain.StateUnauthenticated {
		m.mu.Unlock()
		return
	}

	m.snapshot = domain.SessionSnapshot{
		State:    next,
		Identity: identity,
		Revision: m.snapshot.Revision + 1,
	}
	snap := m.snapshot
	watchers := make([]func(domain.SessionSnapshot), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.mu.Unlock()

	if cur != next {
		m.log.Info().Str("from", string(cur)).Str("to", string(next)).Uint64("revision", snap.Revision).Msg("session state changed")
	}
	for _, fn := range watchers {
		fn(snap)
	}
}

// adoptSession applies a session returned by a credential call. The gateway
// usually announces the same session to the auth listener first, in which
// case the snapshot already reflects it and no new revision is published.
func (m *SessionManager) adoptSession(session *domain.Session) {
	cur := m.Current()
	if cur.Authenticated() && cur.Identity != nil && cur.Identity.Equal(domain.NewIdentity(session.User)) {
		return
	}
	m.applySession(session)
}

// reconcile is best-effort: failures are logged and never abort auth flows.
func (m *SessionManager) reconcile(ctx context.Context, identity domain.Identity) {
	if identity.ID == "" {
		return
	}
	if err := m.profiles.EnsureProfile(ctx, identity); err != nil {
		m.log.Warn().Err(err).Str("user_id", identity.ID).Msg("profile reconcile failed")
	}
}

func (m *SessionManager) record(ctx context.Context, kind domain.ActivityKind, userID string) {
	if m.activity == nil {
		return
	}
	ev := domain.ActivityEvent{Kind: kind, UserID: userID, At: time.Now().UTC()}
	if err := m.activity.Record(ctx, ev); err != nil {
		m.log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to record activity")
	}
}
