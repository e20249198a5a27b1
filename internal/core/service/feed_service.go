package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

// FeedService opens live feeds that refetch in full on every change
// notification for their scope.
type FeedService struct {
	posts  ports.PostLister
	stream ports.ChangeStream
	queue  ports.RefreshQueue
	now    func() time.Time
	log    zerolog.Logger
}

// NewFeedService returns a FeedService.
func NewFeedService(posts ports.PostLister, stream ports.ChangeStream, queue ports.RefreshQueue, log zerolog.Logger) *FeedService {
	return &FeedService{
		posts:  posts,
		stream: stream,
		queue:  queue,
		now:    time.Now,
		log:    log,
	}
}

// Open subscribes to changes for scope and performs the initial fetch. The
// subscription is opened first so no change between the two is missed. A
// failed initial fetch leaves the feed empty until the next refresh.
func (s *FeedService) Open(ctx context.Context, scope domain.FeedScope) (ports.Feed, error) {
	f := &feed{
		svc:      s,
		scope:    scope,
		log:      s.log.With().Str("feed", scope.Key()).Logger(),
		snap:     domain.FeedSnapshot{Scope: scope, Posts: []domain.DisplayPost{}},
		watchers: make(map[int]chan domain.FeedSnapshot),
	}

	filter := domain.ChangeFilter{Table: domain.TablePosts, AuthorID: scope.AuthorID}
	sub, err := s.stream.Subscribe(ctx, filter, f.onChange)
	if err != nil {
		return nil, domain.NewError(domain.KindFetch, "open feed", err)
	}
	f.sub = sub

	_ = f.Refresh(ctx)
	return f, nil
}

type feed struct {
	svc   *FeedService
	scope domain.FeedScope
	log   zerolog.Logger
	sub   ports.Subscription

	pending atomic.Bool
	seq     atomic.Uint64

	mu       sync.Mutex
	closed   bool
	applied  uint64
	snap     domain.FeedSnapshot
	watchers map[int]chan domain.FeedSnapshot
	nextID   int
}

// onChange ignores the payload and schedules a full refetch. Notifications
// that arrive while a refetch is still queued collapse into it.
func (f *feed) onChange(ev domain.ChangeEvent) {
	if f.isClosed() {
		return
	}
	f.log.Debug().Str("change", string(ev.Type)).Msg("change notification")
	if !f.pending.CompareAndSwap(false, true) {
		return
	}
	f.svc.queue.Enqueue(f.scope.Key(), func(ctx context.Context) {
		f.pending.Store(false)
		_ = f.Refresh(ctx)
	})
}

// Refresh refetches the whole list. On failure the last-known list is kept.
func (f *feed) Refresh(ctx context.Context) error {
	if f.isClosed() {
		return nil
	}
	seq := f.seq.Add(1)

	var (
		posts []domain.DisplayPost
		err   error
	)
	if f.scope.AuthorID == "" {
		posts, err = f.svc.posts.ListAll(ctx)
	} else {
		posts, err = f.svc.posts.ListByAuthor(ctx, f.scope.AuthorID)
	}
	if err != nil {
		f.log.Warn().Err(err).Msg("feed refresh failed, keeping last list")
		return err
	}

	f.apply(seq, posts)
	return nil
}

// apply installs a fetch result unless a fetch started later has already
// been applied or the feed was closed meanwhile.
func (f *feed) apply(seq uint64, posts []domain.DisplayPost) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || seq <= f.applied {
		return
	}
	f.applied = seq
	f.snap = domain.FeedSnapshot{
		Scope:     f.scope,
		Posts:     posts,
		Revision:  f.snap.Revision + 1,
		FetchedAt: f.svc.now().UTC(),
	}
	for _, ch := range f.watchers {
		offerLatest(ch, f.snap)
	}
}

func (f *feed) Snapshot() domain.FeedSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.snap
	snap.Posts = append([]domain.DisplayPost(nil), f.snap.Posts...)
	return snap
}

// Watch returns a channel that always holds the most recent snapshot not yet
// received. The current snapshot is delivered first.
func (f *feed) Watch() (<-chan domain.FeedSnapshot, func()) {
	ch := make(chan domain.FeedSnapshot, 1)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.watchers[id] = ch
	offerLatest(ch, f.snap)
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if w, ok := f.watchers[id]; ok {
				delete(f.watchers, id)
				close(w)
			}
		})
	}
}

// Close releases the change subscription. Fetches still in flight finish but
// their results are dropped.
func (f *feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	for id, ch := range f.watchers {
		delete(f.watchers, id)
		close(ch)
	}
	f.mu.Unlock()

	return f.sub.Unsubscribe()
}

func (f *feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// offerLatest replaces any undelivered snapshot in ch with snap.
func offerLatest(ch chan domain.FeedSnapshot, snap domain.FeedSnapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
