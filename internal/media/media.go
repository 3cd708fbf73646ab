// Package media sends playback commands to media playing in opened tabs.
package media

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/koe/internal/intent"
	"github.com/harunnryd/koe/internal/opener"

	"github.com/go-rod/rod"
)

// Controller applies action to the media in target. target may be nil when
// nothing is tracked; implementations then do what they can without it.
// There is no reliable success signal.
type Controller interface {
	Control(ctx context.Context, target opener.Handle, action intent.MediaAction) error
}

// PageSource resolves a handle to its browser tab.
type PageSource interface {
	Page(h opener.Handle) (*rod.Page, bool)
}

// Rod drives media through a script evaluated in the tab: keyboard
// shortcuts for track changes, HTMLMediaElement calls for the rest.
type Rod struct {
	pages PageSource
}

func NewRod(pages PageSource) *Rod {
	return &Rod{pages: pages}
}

func (r *Rod) Control(ctx context.Context, target opener.Handle, action intent.MediaAction) error {
	if target == nil {
		return fmt.Errorf("no tracked tab to control")
	}
	page, ok := r.pages.Page(target)
	if !ok {
		return fmt.Errorf("tab %s is not a browser page", target.Name())
	}
	js, err := Script(action)
	if err != nil {
		return err
	}
	if _, err := page.Context(ctx).Evaluate(&rod.EvalOptions{JS: js}); err != nil {
		return fmt.Errorf("media %s: %w", action, err)
	}
	return nil
}

// Log only records the request. It stands in when no browser is attached.
type Log struct{}

func (Log) Control(_ context.Context, target opener.Handle, action intent.MediaAction) error {
	name := ""
	if target != nil {
		name = target.Name()
	}
	slog.Info("Media control requested", "action", action, "target", name)
	return nil
}

// Script returns the in-page function for action.
func Script(action intent.MediaAction) (string, error) {
	body, ok := scripts[action]
	if !ok {
		return "", fmt.Errorf("unknown media action %q", action)
	}
	return "() => {\n" + mediaPrelude + body + "\n}", nil
}

const mediaPrelude = `  const media = Array.from(document.querySelectorAll("video, audio"));
  const key = (k, code, shift) => document.dispatchEvent(new KeyboardEvent("keydown", { key: k, code: code, shiftKey: !!shift, bubbles: true }));
`

var scripts = map[intent.MediaAction]string{
	intent.MediaPause:      `  media.forEach(m => { if (!m.paused) m.pause(); });`,
	intent.MediaStop:       `  media.forEach(m => { m.pause(); try { m.currentTime = 0; } catch (e) {} });`,
	intent.MediaResume:     `  media.forEach(m => { if (m.paused) m.play().catch(() => {}); });`,
	intent.MediaNext:       `  key("N", "KeyN", true);`,
	intent.MediaPrevious:   `  key("P", "KeyP", true);`,
	intent.MediaVolumeUp:   `  media.forEach(m => { m.volume = Math.min(1, m.volume + 0.1); });`,
	intent.MediaVolumeDown: `  media.forEach(m => { m.volume = Math.max(0, m.volume - 0.1); });`,
	intent.MediaMute:       `  media.forEach(m => { m.muted = !m.muted; });`,
}
