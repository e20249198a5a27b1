package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/framez/framez-core/internal/api/metrics"
	"github.com/framez/framez-core/internal/core/domain"
	"github.com/framez/framez-core/internal/core/ports"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10

	// frameRefresh is the client frame that requests a pull-to-refresh.
	frameRefresh = "refresh"
)

type clientFrame struct {
	Type string `json:"type"`
}

// FeedHandler streams live feed snapshots over a websocket.
type FeedHandler struct {
	feeds    ports.FeedService
	sessions ports.SessionService
	upgrader websocket.Upgrader
	now      func() time.Time
	log      zerolog.Logger
}

func NewFeedHandler(feeds ports.FeedService, sessions ports.SessionService, log zerolog.Logger) *FeedHandler {
	return &FeedHandler{
		feeds:    feeds,
		sessions: sessions,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		now:      time.Now,
		log:      log,
	}
}

// Live handles GET /v1/feed/live. Every frame is a full snapshot; the first
// one is sent as soon as the feed is open. The client may send
// {"type":"refresh"} to refetch the feed; the result arrives as the next
// snapshot.
//
// @Summary      Live feed stream (websocket)
// @Tags         feed
// @Param        author  query  string  false  "Only this author's posts"
// @Success      101
// @Failure      502  {object}  errorResponse
// @Router       /v1/feed/live [get]
func (h *FeedHandler) Live(c echo.Context) error {
	scope := domain.GlobalFeed
	if author := c.QueryParam("author"); author != "" {
		scope = domain.AuthorFeed(author)
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	f, err := h.feeds.Open(ctx, scope)
	if err != nil {
		return toHTTPError(err)
	}
	defer f.Close()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("feed upgrade failed")
		return nil
	}
	defer conn.Close()

	label := "global"
	if scope.AuthorID != "" {
		label = "author"
	}
	metrics.FeedStreamsActive.WithLabelValues(label).Inc()
	defer metrics.FeedStreamsActive.WithLabelValues(label).Dec()

	go h.readUntilClosed(ctx, conn, f, cancel)

	updates, stop := f.Watch()
	defer stop()

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(toFeedFrame(snap, h.sessions.Current().Identity, h.now())); err != nil {
				h.log.Debug().Err(err).Str("feed", scope.Key()).Msg("feed write failed")
				return nil
			}
			metrics.FeedSnapshotsSentTotal.Inc()
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return nil
			}
		}
	}
}

// readUntilClosed processes client frames until the peer goes away, then
// cancels the stream. Refresh requests run here, one at a time. A failed
// refresh keeps the last snapshot, so nothing is sent back.
func (h *FeedHandler) readUntilClosed(ctx context.Context, conn *websocket.Conn, f ports.Feed, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != frameRefresh {
			continue
		}
		if err := f.Refresh(ctx); err != nil {
			h.log.Debug().Err(err).Msg("feed refresh failed")
		}
	}
}
