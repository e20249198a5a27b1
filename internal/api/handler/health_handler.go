package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/framez/framez-core/internal/core/ports"
)

const probeTimeout = 3 * time.Second

// HealthHandler serves GET /health. It never touches a backing service and
// reports the session state alongside.
type HealthHandler struct {
	sessions ports.SessionService
}

func NewHealthHandler(sessions ports.SessionService) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

type livenessResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
}

func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, livenessResponse{
		Status:  "ok",
		Session: string(h.sessions.Current().State),
	})
}

// probe checks one backing service.
type probe struct {
	name  string
	check func(ctx context.Context) error
}

// ReadinessHandler serves GET /health/ready. Only configured services are
// probed, concurrently and under one deadline.
type ReadinessHandler struct {
	probes []probe
}

func NewReadinessHandler(db *mongo.Database, rdb *redis.Client, pg *pgxpool.Pool) *ReadinessHandler {
	h := &ReadinessHandler{}
	if db != nil {
		h.probes = append(h.probes, probe{"mongodb", func(ctx context.Context) error {
			return db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
		}})
	}
	if rdb != nil {
		h.probes = append(h.probes, probe{"redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	if pg != nil {
		h.probes = append(h.probes, probe{"postgres", pg.Ping})
	}
	return h
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

func (h *ReadinessHandler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
	defer cancel()

	resp := readinessResponse{Status: "ok", Dependencies: make(map[string]dependencyStatus, len(h.probes))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range h.probes {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := dependencyStatus{Status: "ok"}
			if err := p.check(ctx); err != nil {
				st = dependencyStatus{Status: "unhealthy", Error: err.Error()}
			}
			mu.Lock()
			resp.Dependencies[p.name] = st
			if st.Error != "" {
				resp.Status = "degraded"
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
