package ingress

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	koeerrors "github.com/harunnryd/koe/internal/errors"
)

type eventRequest struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
}

type eventResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// Handler serves POST /api/v1/events. A client-supplied id makes retries
// idempotent.
func Handler(in *Ingress) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Content == "" {
			http.Error(w, "Missing required field: content", http.StatusBadRequest)
			return
		}
		if req.Source == "" {
			req.Source = SourceHTTP
		}

		eventType := EventType(req.Type)
		if eventType == "" {
			eventType = TypeUtterance
		}

		evt := NewEvent(req.Source, eventType, req.SessionID, req.Content, req.Metadata)
		if req.ID != "" {
			evt.ID = req.ID
		}

		status := http.StatusAccepted
		body := eventResponse{Status: "accepted", ID: evt.ID}

		if err := in.Submit(r.Context(), &evt); err != nil {
			switch {
			case errors.Is(err, koeerrors.ErrDuplicateEvent):
				status, body.Status = http.StatusOK, "duplicate"
			case errors.Is(err, koeerrors.ErrTransient):
				http.Error(w, "Queue full", http.StatusTooManyRequests)
				return
			default:
				slog.Error("Failed to submit event", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
