package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

const (
	notifyChannel         = "posts_changes"
	defaultReconnectDelay = 5 * time.Second
)

// ChangeStream implements ports.ChangeStream with LISTEN/NOTIFY. One pooled
// connection listens for every subscriber; Run must be started for events
// to flow.
type ChangeStream struct {
	pool           *pgxpool.Pool
	reconnectDelay time.Duration
	log            zerolog.Logger

	mu       sync.RWMutex
	handlers map[int]subscriber
	nextID   int
}

type subscriber struct {
	filter  domain.ChangeFilter
	handler ports.ChangeHandler
}

// NewChangeStream creates a ChangeStream.
func NewChangeStream(pool *pgxpool.Pool, reconnectDelay time.Duration, log zerolog.Logger) *ChangeStream {
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	return &ChangeStream{
		pool:           pool,
		reconnectDelay: reconnectDelay,
		log:            log,
		handlers:       make(map[int]subscriber),
	}
}

// Subscribe registers handler for changes matching filter.
func (s *ChangeStream) Subscribe(_ context.Context, filter domain.ChangeFilter, handler ports.ChangeHandler) (ports.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = subscriber{filter: filter, handler: handler}
	return subscription(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}), nil
}

// Run listens until ctx is cancelled, reconnecting after a fixed delay when
// the connection fails.
func (s *ChangeStream) Run(ctx context.Context) {
	for {
		err := s.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Dur("retry_in", s.reconnectDelay).Msg("change listener stopped, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *ChangeStream) listen(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener: %w", err)
	}
	// A connection that was LISTENing must not go back to the pool.
	defer func() {
		_ = conn.Conn().Close(context.WithoutCancel(ctx))
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.log.Info().Str("channel", notifyChannel).Msg("listening for post changes")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		event, err := decodeNotification(n.Payload)
		if err != nil {
			s.log.Debug().Err(err).Msg("ignoring malformed notification")
			continue
		}
		s.dispatch(event)
	}
}

func (s *ChangeStream) dispatch(event domain.ChangeEvent) {
	s.mu.RLock()
	targets := make([]ports.ChangeHandler, 0, len(s.handlers))
	for _, sub := range s.handlers {
		if matches(sub.filter, event) {
			targets = append(targets, sub.handler)
		}
	}
	s.mu.RUnlock()

	for _, h := range targets {
		h(event)
	}
}

func decodeNotification(payload string) (domain.ChangeEvent, error) {
	var event domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode notification: %w", err)
	}
	return event, nil
}

// matches applies a subscription filter. Author filters look at the new row
// and, for deletes, the old one.
func matches(filter domain.ChangeFilter, event domain.ChangeEvent) bool {
	if filter.Table != "" && filter.Table != event.Table {
		return false
	}
	if filter.AuthorID == "" {
		return true
	}
	return rowAuthor(event.Record) == filter.AuthorID || rowAuthor(event.OldRecord) == filter.AuthorID
}

func rowAuthor(row map[string]any) string {
	id, _ := row["user_id"].(string)
	return id
}

type subscription func()

func (f subscription) Unsubscribe() error {
	f()
	return nil
}
