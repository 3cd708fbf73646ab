package components

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/daemon"
	"github.com/harunnryd/koe/internal/ingress"
)

// APIComponents are the components the HTTP API serves from. Nil members
// leave their routes unregistered.
type APIComponents struct {
	Automation   *AutomationComponent
	Orchestrator *OrchestratorComponent
	Ingress      *IngressComponent
}

type HTTPServerComponent struct {
	daemon      *daemon.Daemon
	cfg         *config.ServerConfig
	api         APIComponents
	server      *http.Server
	handler     http.Handler
	shutdownTTL time.Duration
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
	streams     sync.WaitGroup
	closing     chan struct{}
}

func NewHTTPServerComponent(d *daemon.Daemon, cfg *config.ServerConfig, api APIComponents) *HTTPServerComponent {
	return &HTTPServerComponent{
		daemon:      d,
		cfg:         cfg,
		api:         api,
		initialized: false,
		started:     false,
	}
}

func (h *HTTPServerComponent) Name() string {
	return "HTTPServer"
}

func (h *HTTPServerComponent) Dependencies() []string {
	deps := []string{}
	if h.api.Automation != nil {
		deps = append(deps, "Automation")
	}
	if h.api.Orchestrator != nil {
		deps = append(deps, "Orchestrator")
	}
	if h.api.Ingress != nil {
		deps = append(deps, "Ingress")
	}
	return deps
}

func (h *HTTPServerComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/api/health", h.handleAPIHealth)
	if h.api.Automation != nil {
		mux.HandleFunc("/api/chat", h.handleChat)
		mux.HandleFunc("/api/events", h.handleEvents)
	}
	mux.HandleFunc("/api/classify", h.handleClassify)
	if h.api.Orchestrator != nil {
		mux.HandleFunc("/api/dispatch", h.handleDispatch)
	}
	if h.api.Ingress != nil {
		mux.HandleFunc("/api/v1/events", h.handleIngress)
	}

	readTimeout, err := config.DurationOrDefault(h.cfg.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return fmt.Errorf("parse server read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(h.cfg.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return fmt.Errorf("parse server write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(h.cfg.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse server idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(h.cfg.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}

	h.handler = h.withCORS(mux)
	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", h.cfg.Port),
		Handler:      h.handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	h.shutdownTTL = shutdownTimeout
	h.closing = make(chan struct{})

	h.initialized = true
	slog.Info("HTTPServer initialized", "component", h.Name(), "port", h.cfg.Port)
	return nil
}

func (h *HTTPServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return fmt.Errorf("HTTPServer not initialized")
	}

	go func() {
		slog.Info("HTTP server listening", "component", h.Name(), "addr", h.server.Addr)
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "component", h.Name(), "error", err)
		}
	}()

	h.started = true
	h.startTime = time.Now()
	slog.Info("HTTPServer started", "component", h.Name())
	return nil
}

func (h *HTTPServerComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		slog.Info("HTTPServer not started, skipping stop", "component", h.Name())
		return nil
	}

	slog.Info("Stopping HTTPServer...", "component", h.Name())
	shutdownCtx, cancel := context.WithTimeout(ctx, h.shutdownTTL)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	close(h.closing)
	if err := h.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTPServer shutdown error", "component", h.Name(), "error", err)
		return err
	}
	h.streams.Wait()

	h.started = false
	slog.Info("HTTPServer stopped", "component", h.Name())
	return nil
}

func (h *HTTPServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.initialized {
		return &daemon.ComponentHealth{
			Name:    h.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if !h.started {
		return &daemon.ComponentHealth{
			Name:    h.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    h.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

// Handler exposes the routes without a listener.
func (h *HTTPServerComponent) Handler() http.Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

func (h *HTTPServerComponent) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	healthResponse := map[string]interface{}{
		"status":  "ok",
		"version": Version,
	}

	componentHealthMap := make(map[string]interface{})
	if h.daemon != nil {
		for name, ch := range h.daemon.ComponentHealth() {
			entry := map[string]interface{}{"healthy": ch.Healthy}
			if ch.Error != nil {
				entry["error"] = ch.Error.Error()
			}
			for k, v := range ch.Details {
				entry[k] = v
			}
			componentHealthMap[name] = entry
		}
		healthResponse["uptime"] = h.daemon.Uptime().Round(time.Second).String()
	}
	healthResponse["components"] = componentHealthMap

	if stats, err := processStats(r.Context(), int32(os.Getpid())); err == nil {
		healthResponse["process"] = stats
	} else {
		slog.Debug("Process stats unavailable", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse)
}

func (h *HTTPServerComponent) handleIngress(w http.ResponseWriter, r *http.Request) {
	ing := h.api.Ingress.GetIngress()
	if ing == nil {
		writeError(w, http.StatusServiceUnavailable, "ingress not initialized")
		return
	}
	ingress.Handler(ing).ServeHTTP(w, r)
}

// withCORS answers preflight requests and tags responses for the origins in
// server.allowed_origins. An empty list allows any origin.
func (h *HTTPServerComponent) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && h.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPServerComponent) originAllowed(origin string) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, origin)
}
