package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

const (
	heartbeatInterval     = 25 * time.Second
	defaultReconnectDelay = 5 * time.Second
	writeTimeout          = 10 * time.Second
	realtimeSchema        = "public"
)

// Phoenix channel events used by Realtime.
const (
	eventJoin            = "phx_join"
	eventLeave           = "phx_leave"
	eventReply           = "phx_reply"
	eventError           = "phx_error"
	eventClose           = "phx_close"
	eventHeartbeat       = "heartbeat"
	eventAccessToken     = "access_token"
	eventPostgresChanges = "postgres_changes"
)

// Realtime implements ports.ChangeStream over the Realtime websocket. Each
// subscription owns one socket and one channel, and reconnects after a fixed
// delay until it is unsubscribed.
type Realtime struct {
	wsURL          string
	client         *Client
	reconnectDelay time.Duration
	heartbeat      time.Duration
	dialer         *websocket.Dialer
	log            zerolog.Logger
}

// NewRealtime creates a Realtime adapter. Channel joins are authorised with
// the client's current access token.
func NewRealtime(cfg Config, client *Client, log zerolog.Logger) (*Realtime, error) {
	wsURL, err := realtimeURL(cfg.URL, cfg.AnonKey)
	if err != nil {
		return nil, err
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	return &Realtime{
		wsURL:          wsURL,
		client:         client,
		reconnectDelay: delay,
		heartbeat:      heartbeatInterval,
		dialer:         websocket.DefaultDialer,
		log:            log,
	}, nil
}

func realtimeURL(base, apiKey string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse project url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported project url scheme %q", u.Scheme)
	}
	u.Path = "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {apiKey}, "vsn": {"1.0.0"}}.Encode()
	return u.String(), nil
}

// Subscribe joins a channel for filter.Table, narrowed to one author when
// filter.AuthorID is set. The first connection is made synchronously so
// configuration errors surface here. The subscription outlives ctx and ends
// with Unsubscribe.
func (r *Realtime) Subscribe(ctx context.Context, filter domain.ChangeFilter, handler ports.ChangeHandler) (ports.Subscription, error) {
	ch := &channel{
		rt:      r,
		topic:   "realtime:" + filter.Table + "-" + uuid.NewString()[:8],
		filter:  filter,
		handler: handler,
		done:    make(chan struct{}),
		log:     r.log.With().Str("table", filter.Table).Str("author", filter.AuthorID).Logger(),
	}
	ch.ctx, ch.cancel = context.WithCancel(context.WithoutCancel(ctx))

	conn, err := ch.connect(ctx)
	if err != nil {
		ch.cancel()
		return nil, fmt.Errorf("subscribe %s: %w", filter.Table, err)
	}

	go ch.run(conn)
	return ch, nil
}

type channel struct {
	rt      *Realtime
	topic   string
	filter  domain.ChangeFilter
	handler ports.ChangeHandler
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	ref     atomic.Uint64
	joinRef string

	wmu       sync.Mutex
	conn      *websocket.Conn
	lastToken string
}

// Unsubscribe leaves the channel, closes the socket and waits for the
// reader to stop.
func (c *channel) Unsubscribe() error {
	c.once.Do(func() {
		if err := c.send(eventLeave, map[string]any{}); err != nil {
			c.log.Debug().Err(err).Msg("leave failed")
		}
		c.cancel()
		c.closeConn()
		<-c.done
	})
	return nil
}

func (c *channel) run(conn *websocket.Conn) {
	defer close(c.done)

	for {
		if conn != nil {
			err := c.serve(conn)
			conn = nil
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Dur("retry_in", c.rt.reconnectDelay).Msg("realtime connection lost, reconnecting")
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.rt.reconnectDelay):
		}

		var err error
		conn, err = c.connect(c.ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("realtime reconnect failed")
		}
	}
}

// connect dials the socket and sends the channel join.
func (c *channel) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.rt.dialer.DialContext(ctx, c.rt.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	c.wmu.Lock()
	c.conn = conn
	c.wmu.Unlock()

	token := c.rt.client.accessToken()
	ref := c.nextRef()
	c.wmu.Lock()
	c.joinRef = ref
	c.lastToken = token
	c.wmu.Unlock()

	if err := c.write(phxMessage{
		Topic:   c.topic,
		Event:   eventJoin,
		Payload: c.joinPayload(token),
		Ref:     ref,
		JoinRef: ref,
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("join channel: %w", err)
	}
	return conn, nil
}

func (c *channel) joinPayload(token string) map[string]any {
	change := map[string]any{
		"event":  "*",
		"schema": realtimeSchema,
		"table":  c.filter.Table,
	}
	if c.filter.AuthorID != "" {
		change["filter"] = "user_id=eq." + c.filter.AuthorID
	}
	return map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]any{"ack": false, "self": false},
			"presence":         map[string]any{"key": ""},
			"postgres_changes": []any{change},
			"private":          false,
		},
		"access_token": token,
	}
}

// serve reads messages until the socket fails or the channel is closed.
func (c *channel) serve(conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	defer conn.Close()
	go c.heartbeatLoop(conn, stop)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		if err := c.dispatch(msg); err != nil {
			return err
		}
	}
}

func (c *channel) heartbeatLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.rt.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			err := c.write(phxMessage{Topic: "phoenix", Event: eventHeartbeat, Payload: map[string]any{}, Ref: c.nextRef()})
			if err == nil {
				err = c.pushTokenIfChanged()
			}
			if err != nil {
				c.log.Debug().Err(err).Msg("heartbeat failed")
				_ = conn.Close()
				return
			}
		}
	}
}

// pushTokenIfChanged forwards a refreshed access token to the channel.
func (c *channel) pushTokenIfChanged() error {
	token := c.rt.client.accessToken()
	c.wmu.Lock()
	changed := token != c.lastToken
	c.lastToken = token
	c.wmu.Unlock()
	if !changed {
		return nil
	}
	return c.send(eventAccessToken, map[string]any{"access_token": token})
}

func (c *channel) dispatch(raw []byte) error {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Debug().Err(err).Msg("ignoring malformed realtime message")
		return nil
	}
	if msg.Topic != c.topic {
		return nil
	}

	switch msg.Event {
	case eventReply:
		var reply struct {
			Status   string          `json:"status"`
			Response json.RawMessage `json:"response"`
		}
		if err := json.Unmarshal(msg.Payload, &reply); err == nil && reply.Status != "ok" {
			c.log.Warn().Str("status", reply.Status).RawJSON("response", reply.Response).Msg("realtime request rejected")
		}
	case eventPostgresChanges:
		var p struct {
			Data changePayload `json:"data"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.log.Debug().Err(err).Msg("ignoring malformed change payload")
			return nil
		}
		c.deliver(p.Data)
	case string(domain.ChangeInsert), string(domain.ChangeUpdate), string(domain.ChangeDelete):
		var p changePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil
		}
		if p.Type == "" {
			p.Type = msg.Event
		}
		c.deliver(p)
	case eventError, eventClose:
		if c.ctx.Err() == nil {
			return fmt.Errorf("channel %s: %s", c.topic, msg.Event)
		}
	}
	return nil
}

func (c *channel) deliver(p changePayload) {
	table := p.Table
	if table == "" {
		table = c.filter.Table
	}
	c.handler(domain.ChangeEvent{
		Table:     table,
		Type:      domain.ChangeType(p.Type),
		Record:    p.Record,
		OldRecord: p.OldRecord,
	})
}

func (c *channel) send(event string, payload any) error {
	c.wmu.Lock()
	joinRef := c.joinRef
	c.wmu.Unlock()
	return c.write(phxMessage{Topic: c.topic, Event: event, Payload: payload, Ref: c.nextRef(), JoinRef: joinRef})
}

func (c *channel) write(m phxMessage) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(m)
}

func (c *channel) closeConn() {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *channel) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

type phxMessage struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Ref     string `json:"ref"`
	JoinRef string `json:"join_ref,omitempty"`
}

type inboundMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type changePayload struct {
	Type      string         `json:"type"`
	Table     string         `json:"table"`
	Schema    string         `json:"schema"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}
