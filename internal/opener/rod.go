package opener

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/koe/internal/concurrency"
	koeerrors "github.com/harunnryd/koe/internal/errors"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	autoClickAttempts = 5
	autoClickStep     = 1500 * time.Millisecond
)

type RodConfig struct {
	Bin               string
	ControlURL        string
	Headless          bool
	UserDataDir       string
	NavigationTimeout time.Duration
	AutoClickTimeout  time.Duration
}

// Rod opens destinations as tabs of a Chrome instance driven over the
// DevTools protocol. It connects to ControlURL when set and launches a
// browser otherwise.
type Rod struct {
	cfg     RodConfig
	mu      sync.Mutex
	browser *rod.Browser
}

type rodHandle struct {
	name string
	page *rod.Page
}

func (h *rodHandle) Name() string { return h.name }

func NewRod(cfg RodConfig) *Rod {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 15 * time.Second
	}
	if cfg.AutoClickTimeout <= 0 {
		cfg.AutoClickTimeout = 8 * time.Second
	}
	return &Rod{cfg: cfg}
}

// Start connects to the browser, reconnecting when the previous connection
// went stale.
func (r *Rod) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.ensureLocked(ctx)
	return err
}

func (r *Rod) ensureLocked(ctx context.Context) (*rod.Browser, error) {
	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return r.browser, nil
		}
		slog.Warn("Stale browser connection, reconnecting")
		_ = r.browser.Close()
		r.browser = nil
	}

	controlURL := r.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(r.cfg.Headless)
		if r.cfg.Bin != "" {
			l = l.Bin(r.cfg.Bin)
		}
		if r.cfg.UserDataDir != "" {
			l = l.UserDataDir(r.cfg.UserDataDir)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, koeerrors.MapError(fmt.Errorf("launch browser: %w", err))
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := b.Connect(); err != nil {
		return nil, koeerrors.MapError(fmt.Errorf("connect to browser: %w", err))
	}
	slog.Info("Browser connected", "control_url", controlURL, "headless", r.cfg.Headless)
	r.browser = b
	return b, nil
}

func (r *Rod) ensure(ctx context.Context) (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(ctx)
}

// Open creates a new tab. A browser that cannot be reached or refuses the
// tab yields an error and no handle.
func (r *Rod) Open(ctx context.Context, target Target, name string) (Handle, error) {
	b, err := r.ensure(ctx)
	if err != nil {
		return nil, err
	}

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: target.URL})
	if err != nil {
		return nil, koeerrors.MapError(fmt.Errorf("open %s: %w", name, err))
	}
	// The tab outlives the dispatch that opened it.
	page = page.Context(context.WithoutCancel(ctx))
	if err := page.Context(ctx).Timeout(r.cfg.NavigationTimeout).WaitLoad(); err != nil {
		slog.Debug("Page load not confirmed", "name", name, "error", err)
	}
	if _, err := page.Activate(); err != nil {
		slog.Debug("Failed to activate page", "name", name, "error", err)
	}

	h := &rodHandle{name: name, page: page}
	switch {
	case target.NeedsAutoClick:
		concurrency.SafeGo(func() { r.autoClick(page, target.Query) }, nil)
	case target.NeedsAggressiveAutoplay:
		concurrency.SafeGo(func() { r.forcePlay(page) }, nil)
	}
	return h, nil
}

// autoClick retries clicking the first video result with a growing delay.
func (r *Rod) autoClick(page *rod.Page, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.AutoClickTimeout)
	defer cancel()

	for attempt := 1; attempt <= autoClickAttempts; attempt++ {
		select {
		case <-ctx.Done():
			slog.Info("Auto-click gave up, first result needs a manual click", "query", query)
			return
		case <-time.After(time.Duration(attempt) * autoClickStep / 2):
		}

		res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{JS: firstResultJS, ByValue: true})
		if err != nil {
			slog.Debug("Auto-click attempt failed", "attempt", attempt, "error", err)
			continue
		}
		href := res.Value.Str()
		if href == "" {
			continue
		}
		if err := page.Context(ctx).Timeout(r.cfg.NavigationTimeout).Navigate(href); err != nil {
			slog.Debug("Navigate to first result failed", "href", href, "error", err)
			continue
		}
		slog.Info("Auto-clicked first result", "query", query, "url", href)
		r.forcePlay(page)
		return
	}
	slog.Info("Auto-click gave up, first result needs a manual click", "query", query)
}

func (r *Rod) forcePlay(page *rod.Page) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.AutoClickTimeout)
	defer cancel()
	if err := page.Context(ctx).WaitLoad(); err != nil {
		return
	}
	if _, err := page.Context(ctx).Evaluate(&rod.EvalOptions{JS: forcePlayJS, AwaitPromise: true}); err != nil {
		slog.Debug("Autoplay script failed", "error", err)
	}
}

func (r *Rod) handle(h Handle) (*rodHandle, error) {
	rh, ok := h.(*rodHandle)
	if !ok || rh == nil {
		return nil, fmt.Errorf("foreign handle %T", h)
	}
	return rh, nil
}

// IsClosed reports whether the tab is gone. A lost browser connection is an
// error, not a closed tab.
func (r *Rod) IsClosed(ctx context.Context, h Handle) (bool, error) {
	rh, err := r.handle(h)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	b := r.browser
	r.mu.Unlock()
	if b == nil {
		return false, koeerrors.Transient("browser not connected")
	}

	pages, err := b.Context(ctx).Pages()
	if err != nil {
		return false, koeerrors.MapError(err)
	}
	for _, p := range pages {
		if p.TargetID == rh.page.TargetID {
			return false, nil
		}
	}
	return true, nil
}

// HasFocus is used by the window registry to refresh the focused flag.
func (r *Rod) HasFocus(ctx context.Context, h Handle) (bool, error) {
	rh, err := r.handle(h)
	if err != nil {
		return false, err
	}
	res, err := rh.page.Context(ctx).Evaluate(&rod.EvalOptions{JS: `() => document.hasFocus()`, ByValue: true})
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (r *Rod) Close(ctx context.Context, h Handle) error {
	rh, err := r.handle(h)
	if err != nil {
		return err
	}
	return rh.page.Context(ctx).Close()
}

func (r *Rod) Focus(ctx context.Context, h Handle) error {
	rh, err := r.handle(h)
	if err != nil {
		return err
	}
	_, err = rh.page.Context(ctx).Activate()
	return err
}

func (r *Rod) Navigate(ctx context.Context, h Handle, url string) error {
	rh, err := r.handle(h)
	if err != nil {
		return err
	}
	if err := rh.page.Context(ctx).Timeout(r.cfg.NavigationTimeout).Navigate(url); err != nil {
		return koeerrors.MapError(fmt.Errorf("navigate %s: %w", rh.name, err))
	}
	_, err = rh.page.Activate()
	return err
}

// Page exposes the underlying tab for in-page media control.
func (r *Rod) Page(h Handle) (*rod.Page, bool) {
	rh, err := r.handle(h)
	if err != nil {
		return nil, false
	}
	return rh.page, true
}

func (r *Rod) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

const firstResultJS = `() => {
  const selectors = [
    "a#video-title",
    "ytd-video-renderer a#video-title",
    "ytd-rich-item-renderer a#video-title",
    "ytd-compact-video-renderer a#video-title",
    "#contents ytd-video-renderer a",
    "ytd-thumbnail a"
  ];
  for (const sel of selectors) {
    for (const el of document.querySelectorAll(sel)) {
      const href = el.href || el.getAttribute("href") || "";
      if (href.includes("/watch?v=")) {
        return new URL(href, location.origin).toString();
      }
    }
  }
  return "";
}`

const forcePlayJS = `async () => {
  for (let i = 0; i < 10; i++) {
    const v = document.querySelector("video");
    if (v) {
      if (v.paused) {
        try { await v.play(); } catch (e) {
          const btn = document.querySelector(".ytp-play-button, .ytp-large-play-button");
          if (btn) btn.click();
        }
      }
      return true;
    }
    await new Promise(r => setTimeout(r, 500));
  }
  return false;
}`
