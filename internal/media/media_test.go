package media

import (
	"context"
	"strings"
	"testing"

	"github.com/harunnryd/koe/internal/intent"
)

func TestScriptCoversEveryAction(t *testing.T) {
	actions := []intent.MediaAction{
		intent.MediaPause, intent.MediaStop, intent.MediaResume, intent.MediaNext,
		intent.MediaPrevious, intent.MediaVolumeUp, intent.MediaVolumeDown, intent.MediaMute,
	}
	for _, a := range actions {
		js, err := Script(a)
		if err != nil {
			t.Fatalf("%s: %v", a, err)
		}
		if !strings.HasPrefix(js, "() => {") {
			t.Fatalf("%s: script is not a function: %q", a, js)
		}
	}
	if _, err := Script("rewind"); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestRodControlWithoutTarget(t *testing.T) {
	if err := NewRod(nil).Control(context.Background(), nil, intent.MediaPause); err == nil {
		t.Fatal("expected error without a target")
	}
	if err := (Log{}).Control(context.Background(), nil, intent.MediaMute); err != nil {
		t.Fatalf("log controller: %v", err)
	}
}
