package ingress

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler(t *testing.T) {
	ingress := NewIngress(10, 10, fastDrain, setupWorker(t))
	h := Handler(ingress)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"id":"evt-1","content":"play despacito"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp eventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "evt-1" || resp.Status != "accepted" {
		t.Fatalf("unexpected response %+v", resp)
	}

	evt := <-ingress.InteractiveQueue()
	if evt.Source != SourceHTTP || evt.Type != TypeUtterance {
		t.Fatalf("unexpected event %+v", evt)
	}

	if rec := post(`{"id":"evt-1","content":"play despacito"}`); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "duplicate") {
		t.Fatalf("expected duplicate 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := post(`{"content":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := post(`not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
