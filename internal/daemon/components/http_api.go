package components

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/eventbus"
	"github.com/harunnryd/koe/internal/intent"
	"github.com/harunnryd/koe/internal/model/contract"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/process"
)

// Version is reported by /health.
var Version = "0.1.0"

const (
	eventStreamBuffer = 64
	eventWriteTimeout = 5 * time.Second
	maxRequestBytes   = 1 << 20
)

type chatRequest struct {
	Message string             `json:"message"`
	History []contract.Message `json:"history"`
}

type textRequest struct {
	Text string `json:"text"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// handleAPIHealth is the lightweight liveness probe used by UIs.
func (h *HTTPServerComponent) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	body := map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.api.Automation != nil {
		body["models"] = h.api.Automation.Models()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleChat relays a message and the caller's history to the responder.
func (h *HTTPServerComponent) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	resp := h.api.Automation.Responder()
	if resp == nil {
		writeError(w, http.StatusServiceUnavailable, "responder not initialized")
		return
	}
	reply, err := resp.Reply(r.Context(), req.Message, req.History)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, koeerrors.ErrResponderUnavailable) {
			status = http.StatusServiceUnavailable
		}
		slog.Error("Chat request failed", "error", err)
		writeError(w, status, "Failed to get response from AI")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *HTTPServerComponent) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, intent.Classify(req.Text))
}

// handleDispatch classifies and runs an utterance without a session. The
// response carries the intent, the automation result and the reply text.
func (h *HTTPServerComponent) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	kernel := h.api.Orchestrator.GetKernel()
	if kernel == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}
	writeJSON(w, http.StatusOK, kernel.Respond(r.Context(), req.Text, nil))
}

// handleEvents streams every bus event to a websocket client as JSON. A
// client that falls eventStreamBuffer events behind loses the overflow.
func (h *HTTPServerComponent) handleEvents(w http.ResponseWriter, r *http.Request) {
	bus := h.api.Automation.Bus()
	if bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not initialized")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || h.originAllowed(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	h.streams.Add(1)
	defer h.streams.Done()
	defer conn.Close()

	events := make(chan eventbus.Event, eventStreamBuffer)
	unsubscribe := bus.Subscribe(func(ev eventbus.Event) {
		select {
		case events <- ev:
		default:
			slog.Debug("Event stream client lagging, dropping event", "event", ev.Name)
		}
	})
	defer unsubscribe()

	// The read loop only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	slog.Debug("Event stream client connected", "remote", r.RemoteAddr)
	for {
		select {
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("Event stream write failed", "error", err)
				return
			}
		case <-gone:
			slog.Debug("Event stream client disconnected", "remote", r.RemoteAddr)
			return
		case <-h.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

type processInfo struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
}

func processStats(ctx context.Context, pid int32) (*processInfo, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	info := &processInfo{PID: pid}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = cpu
	}
	if threads, err := p.NumThreadsWithContext(ctx); err == nil {
		info.Threads = threads
	}
	return info, nil
}
