package format

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/koe/internal/scheduler"
	"github.com/harunnryd/koe/internal/stats"
	"github.com/harunnryd/koe/internal/window"
)

func sampleSnapshot() stats.Snapshot {
	return stats.Snapshot{
		TotalExecutions:      3,
		SuccessfulExecutions: 2,
		FailedExecutions:     1,
		SuccessRate:          "67%",
		DailyStats: map[string]stats.DayStats{
			"2026-03-01": {Total: 3, Successful: 2, Failed: 1, Types: map[string]int{"music": 2, "search": 1}},
		},
		ExecutionHistory: []stats.Execution{
			{ID: "1", Intent: "music", Query: "despacito", Timestamp: time.Now(), Success: true},
			{ID: "2", Intent: "search", Query: "golang", Timestamp: time.Now(), Error: "Unable to open Google."},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, in := range []string{"table", "JSON", " yaml "} {
		if _, err := ParseOutputFormat(in); err != nil {
			t.Fatalf("ParseOutputFormat(%q): %v", in, err)
		}
	}
	if _, err := ParseOutputFormat("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
	if _, err := New("xml"); err == nil {
		t.Fatal("expected error creating xml formatter")
	}
}

func TestTableFormatter_Stats(t *testing.T) {
	out, err := NewTableFormatter().Stats(sampleSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Success rate", "67%", "2026-03-01", "music=2 search=1", "despacito", "Unable to open Google."} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats table missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatter_Empty(t *testing.T) {
	f := NewTableFormatter()
	if out, _ := f.Windows(nil); out != "No tracked windows" {
		t.Fatalf("windows = %q", out)
	}
	if out, _ := f.Routines(nil); out != "No routines" {
		t.Fatalf("routines = %q", out)
	}
	if out, _ := f.Sessions(nil); out != "No sessions" {
		t.Fatalf("sessions = %q", out)
	}
}

func TestTableFormatter_Windows(t *testing.T) {
	out, err := NewTableFormatter().Windows([]window.Entry{
		{ID: "01HX", Type: "music", Query: "despacito", Platform: "youtube", OpenedAt: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "01HX") || !strings.Contains(out, "despacito") {
		t.Fatalf("unexpected table:\n%s", out)
	}
}

func TestJSONFormatter_EmptyListIsArray(t *testing.T) {
	out, err := NewJSONFormatter().Routines(nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "[]" {
		t.Fatalf("routines json = %q, want []", out)
	}
}

func TestJSONFormatter_Stats(t *testing.T) {
	out, err := NewJSONFormatter().Stats(sampleSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["successRate"] != "67%" {
		t.Fatalf("successRate = %v", decoded["successRate"])
	}
}

func TestYAMLFormatter_UsesJSONNames(t *testing.T) {
	out, err := NewYAMLFormatter().Routines([]scheduler.Routine{{ID: "r1", Schedule: "@daily", Utterance: "play jazz"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "utterance: play jazz") {
		t.Fatalf("unexpected yaml:\n%s", out)
	}
}
