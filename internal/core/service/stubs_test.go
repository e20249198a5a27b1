package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

var errBackend = errors.New("backend unavailable")

// ---------------------------------------------------------------------------
// Auth gateway
// ---------------------------------------------------------------------------

type stubAuth struct {
	mu         sync.Mutex
	session    *domain.Session
	getErr     error
	signUpRes  *ports.AuthResult
	signUpErr  error
	signInRes  *ports.AuthResult
	signInErr  error
	signOutErr error
	// announce makes credential calls notify listeners before returning,
	// the way the real gateway does.
	announce bool

	signUpMeta map[string]any
	signOuts   int
	listeners  map[int]ports.AuthListener
	nextID     int
}

func newStubAuth() *stubAuth {
	return &stubAuth{listeners: make(map[int]ports.AuthListener)}
}

func (a *stubAuth) GetSession(_ context.Context) (*domain.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, a.getErr
}

func (a *stubAuth) SignUp(_ context.Context, _, _ string, metadata map[string]any) (*ports.AuthResult, error) {
	a.mu.Lock()
	a.signUpMeta = metadata
	res, err, announce := a.signUpRes, a.signUpErr, a.announce
	a.mu.Unlock()
	a.announceSignIn(announce, res, err)
	return res, err
}

func (a *stubAuth) SignInWithPassword(_ context.Context, _, _ string) (*ports.AuthResult, error) {
	a.mu.Lock()
	res, err, announce := a.signInRes, a.signInErr, a.announce
	a.mu.Unlock()
	a.announceSignIn(announce, res, err)
	return res, err
}

func (a *stubAuth) announceSignIn(announce bool, res *ports.AuthResult, err error) {
	if !announce || err != nil || res == nil || res.Session == nil {
		return
	}
	a.mu.Lock()
	a.session = res.Session
	a.mu.Unlock()
	a.emit(domain.EventSignedIn, res.Session)
}

func (a *stubAuth) SignOut(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signOuts++
	return a.signOutErr
}

func (a *stubAuth) OnAuthStateChange(l ports.AuthListener) ports.Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = l
	return subFunc(func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
		return nil
	})
}

// emit delivers an auth event to every listener.
func (a *stubAuth) emit(event domain.AuthEvent, s *domain.Session) {
	a.mu.Lock()
	ls := make([]ports.AuthListener, 0, len(a.listeners))
	for _, l := range a.listeners {
		ls = append(ls, l)
	}
	a.mu.Unlock()
	for _, l := range ls {
		l(event, s)
	}
}

func (a *stubAuth) listenerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}

type subFunc func() error

func (f subFunc) Unsubscribe() error { return f() }

func sessionFor(id, email, displayName string) *domain.Session {
	meta := map[string]any{}
	if displayName != "" {
		meta["display_name"] = displayName
	}
	return &domain.Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         domain.SessionUser{ID: id, Email: email, Metadata: meta},
	}
}

// ---------------------------------------------------------------------------
// Profile store
// ---------------------------------------------------------------------------

type stubProfiles struct {
	mu      sync.Mutex
	rows    map[string]domain.Profile
	err     error
	inserts int
}

func newStubProfiles() *stubProfiles {
	return &stubProfiles{rows: make(map[string]domain.Profile)}
}

func (s *stubProfiles) InsertIfAbsent(_ context.Context, p domain.Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.rows[p.ID]; ok {
		return false, nil
	}
	s.rows[p.ID] = p
	return true, nil
}

// stubReconciler records EnsureProfile calls without a store.
type stubReconciler struct {
	mu    sync.Mutex
	calls []domain.Identity
	err   error
	trace *[]string
}

func (r *stubReconciler) EnsureProfile(_ context.Context, id domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
	if r.trace != nil {
		*r.trace = append(*r.trace, "ensure_profile")
	}
	return r.err
}

func (r *stubReconciler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// ---------------------------------------------------------------------------
// Post store and object storage
// ---------------------------------------------------------------------------

type stubPosts struct {
	mu        sync.Mutex
	rows      []domain.PostWithAuthor
	listErr   error
	insertErr error
	deleteErr error
	lists     int
	deleted   []string
	trace     *[]string
	nextID    int
}

func (s *stubPosts) List(_ context.Context, authorID string) ([]domain.PostWithAuthor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.PostWithAuthor, 0, len(s.rows))
	for _, r := range s.rows {
		if authorID == "" || r.UserID == authorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubPosts) Insert(_ context.Context, p *domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trace != nil {
		*s.trace = append(*s.trace, "insert")
	}
	if s.insertErr != nil {
		return s.insertErr
	}
	s.nextID++
	p.ID = fmt.Sprintf("post-%d", s.nextID)
	s.rows = append(s.rows, domain.PostWithAuthor{Post: *p})
	return nil
}

func (s *stubPosts) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trace != nil {
		*s.trace = append(*s.trace, "delete_row")
	}
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for i, r := range s.rows {
		if r.ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			s.deleted = append(s.deleted, id)
			return nil
		}
	}
	return domain.ErrPostNotFound
}

func (s *stubPosts) setRows(rows []domain.PostWithAuthor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

func (s *stubPosts) setListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

func (s *stubPosts) listCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

type stubObjects struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	types     map[string]string
	removed   []string
	uploadErr error
	removeErr error
	trace     *[]string
}

func newStubObjects() *stubObjects {
	return &stubObjects{uploads: make(map[string][]byte), types: make(map[string]string)}
}

func (o *stubObjects) Upload(_ context.Context, path string, data []byte, contentType string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.trace != nil {
		*o.trace = append(*o.trace, "upload")
	}
	if o.uploadErr != nil {
		return o.uploadErr
	}
	o.uploads[path] = data
	o.types[path] = contentType
	return nil
}

func (o *stubObjects) PublicURL(path string) string {
	if o.trace != nil {
		*o.trace = append(*o.trace, "public_url")
	}
	return "https://cdn.test/storage/v1/object/public/posts/" + path
}

func (o *stubObjects) Remove(_ context.Context, paths ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.trace != nil {
		*o.trace = append(*o.trace, "remove_object")
	}
	o.removed = append(o.removed, paths...)
	return o.removeErr
}

// ---------------------------------------------------------------------------
// Change stream, refresh queue, activity
// ---------------------------------------------------------------------------

type stubStream struct {
	mu       sync.Mutex
	handlers map[int]ports.ChangeHandler
	filters  []domain.ChangeFilter
	subErr   error
	nextID   int
	released int
}

func newStubStream() *stubStream {
	return &stubStream{handlers: make(map[int]ports.ChangeHandler)}
}

func (s *stubStream) Subscribe(_ context.Context, f domain.ChangeFilter, h ports.ChangeHandler) (ports.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return nil, s.subErr
	}
	id := s.nextID
	s.nextID++
	s.handlers[id] = h
	s.filters = append(s.filters, f)
	return subFunc(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.handlers[id]; ok {
			delete(s.handlers, id)
			s.released++
		}
		return nil
	}), nil
}

func (s *stubStream) publish(ev domain.ChangeEvent) {
	s.mu.Lock()
	hs := make([]ports.ChangeHandler, 0, len(s.handlers))
	for _, h := range s.handlers {
		hs = append(hs, h)
	}
	s.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (s *stubStream) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// manualQueue holds jobs until run is called so tests control timing.
type manualQueue struct {
	mu   sync.Mutex
	jobs []func(context.Context)
	keys []string
}

func (q *manualQueue) Enqueue(key string, job func(context.Context)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.keys = append(q.keys, key)
	q.jobs = append(q.jobs, job)
}

func (q *manualQueue) run(ctx context.Context) int {
	q.mu.Lock()
	jobs := q.jobs
	q.jobs = nil
	q.mu.Unlock()
	for _, j := range jobs {
		j(ctx)
	}
	return len(jobs)
}

func (q *manualQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type stubActivity struct {
	mu     sync.Mutex
	events []domain.ActivityEvent
	err    error
}

func (a *stubActivity) Record(_ context.Context, ev domain.ActivityEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return a.err
}

func (a *stubActivity) kinds() []domain.ActivityKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.ActivityKind, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Kind)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
