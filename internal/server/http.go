package server

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/live-quiz/internal/config"
	httperrors "github.com/gokatarajesh/live-quiz/pkg/http/errors"
)

// WSUpgrader handles WebSocket upgrades. AllowOrigins narrows it.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// AllowOrigins restricts WebSocket upgrades to the given origins. "*" or
// an empty list allows any origin.
func AllowOrigins(origins []string) {
	WSUpgrader.CheckOrigin = func(r *http.Request) bool {
		return originAllowed(origins, r.Header.Get("Origin"))
	}
}

func originAllowed(origins []string, origin string) bool {
	if len(origins) == 0 || origin == "" || slices.Contains(origins, "*") {
		return true
	}
	return slices.Contains(origins, origin)
}

// Routes mounts a group of handlers.
type Routes interface {
	Register(mux *http.ServeMux)
}

// Deps are the optional backends /healthz checks.
type Deps struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
}

// NewHTTPServer wires health, metrics and the given route groups.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, deps Deps, routes ...Routes) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pingDependencies(ctx, deps.Pool, deps.Redis); err != nil {
			logger.Error().Err(err).Msg("dependency ping failed")
			httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeUpstreamError, "upstream error")
			return
		}
		httperrors.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	for _, r := range routes {
		r.Register(mux)
	}

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           withCORS(cfg.CORS.AllowedOrigins, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// withCORS lets the browser admin panel call the API from another origin.
func withCORS(origins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && origin != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redis *redis.Client) error {
	if pool != nil {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
	}
	if redis != nil {
		if err := redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
