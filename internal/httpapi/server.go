package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/johnrirwin/skinlens/internal/auth"
	"github.com/johnrirwin/skinlens/internal/cache"
	"github.com/johnrirwin/skinlens/internal/logging"
	"github.com/johnrirwin/skinlens/internal/ratelimit"
	"github.com/johnrirwin/skinlens/internal/reports"
	"github.com/johnrirwin/skinlens/internal/sessions"
)

// Config tunes the HTTP surface.
type Config struct {
	CORSOrigin       string
	SessionRateLimit time.Duration
	MaxUploadBytes   int64
	// TrustedProxies are addresses or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
}

type Server struct {
	registry       *sessions.Registry
	reports        reports.Store
	health         *cache.HealthStatus
	authSvc        *auth.Service
	authMiddleware *auth.Middleware
	limiter        *ratelimit.Limiter
	cfg            Config
	logger         *logging.Logger
	server         *http.Server
}

func New(registry *sessions.Registry, reportStore reports.Store, health *cache.HealthStatus, authSvc *auth.Service, cfg Config, logger *logging.Logger) *Server {
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 15 * 1024 * 1024
	}

	return &Server{
		registry:       registry,
		reports:        reportStore,
		health:         health,
		authSvc:        authSvc,
		authMiddleware: auth.NewMiddleware(authSvc),
		limiter:        ratelimit.New(cfg.SessionRateLimit),
		cfg:            cfg,
		logger:         logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	sessionAPI := NewSessionAPI(s.registry, s.reports, s.health, s.authSvc, s.authMiddleware, s.limiter, s.cfg, s.logger)
	sessionAPI.RegisterRoutes(mux, s.corsMiddleware)

	// Health check
	mux.HandleFunc("/health", s.corsMiddleware(s.handleHealth))

	return mux
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		// No write timeout: analysis requests and the event stream are long lived.
	}

	s.logger.Info("HTTP API server starting", logging.WithField("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inference := "unknown"
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		inference = "unreachable"
		if s.health.Reachable(ctx) {
			inference = "reachable"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"inference": inference,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// clientIP returns the connection address. When that address is a trusted proxy the
// first X-Forwarded-For hop is used instead.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	addr, err := netip.ParseAddr(host)
	if err != nil || !isTrusted(addr.Unmap(), trusted) {
		return host
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	return host
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// parseTrustedProxies accepts bare addresses and CIDRs. Invalid entries are skipped.
func parseTrustedProxies(entries []string, logger *logging.Logger) []netip.Prefix {
	var out []netip.Prefix
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.Warn("Ignoring invalid trusted proxy", logging.WithField("entry", entry))
				continue
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			logger.Warn("Ignoring invalid trusted proxy", logging.WithField("entry", entry))
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

// PruneClients forgets rate limit entries for clients idle longer than idle.
func (s *Server) PruneClients(idle time.Duration) int {
	return s.limiter.Prune(idle)
}
