// Package automation routes classified intents to the handler that opens
// or controls their destination, and keeps statistics and lifecycle events
// in step with every dispatch.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/koe/internal/concurrency"
	"github.com/harunnryd/koe/internal/destination"
	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/eventbus"
	"github.com/harunnryd/koe/internal/intent"
	"github.com/harunnryd/koe/internal/media"
	"github.com/harunnryd/koe/internal/opener"
	"github.com/harunnryd/koe/internal/window"
)

// Result is the outcome of one dispatch. It is never mutated after
// Dispatch returns.
type Result struct {
	Success  bool                   `json:"success"`
	Message  string                 `json:"message"`
	Action   string                 `json:"action"`
	WindowID string                 `json:"windowId,omitempty"`
	Window   opener.Handle          `json:"-"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Windows is the registry view the dispatcher needs.
type Windows interface {
	Track(h opener.Handle, windowType, query, platform string) (string, bool)
	Active(ctx context.Context) (window.Entry, bool)
	Focus(ctx context.Context, id string) error
	Retarget(id, query, platform string) bool
}

// Recorder receives one record per dispatch.
type Recorder interface {
	Record(ctx context.Context, intentType, query string, success bool, execErr error)
}

type handlerFunc func(ctx context.Context, in intent.Intent) (*Result, error)

type Option func(*Dispatcher)

func WithMedia(c media.Controller) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.media = c
		}
	}
}

func WithStats(r Recorder) Option {
	return func(d *Dispatcher) { d.stats = r }
}

func WithPublisher(p eventbus.Publisher) Option {
	return func(d *Dispatcher) { d.bus = p }
}

// WithMusicPlatform selects where music requests land. Unknown names fall
// back to YouTube.
func WithMusicPlatform(platform string) Option {
	return func(d *Dispatcher) {
		switch platform {
		case destination.PlatformYouTube, destination.PlatformYouTubeMusic,
			destination.PlatformSpotify, destination.PlatformSoundCloud:
			d.musicPlatform = platform
		}
	}
}

// WithOpenTimeout bounds each call into the opener.
func WithOpenTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.openTimeout = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

type Dispatcher struct {
	opener        opener.Opener
	windows       Windows
	media         media.Controller
	stats         Recorder
	bus           eventbus.Publisher
	musicPlatform string
	openTimeout   time.Duration
	now           func() time.Time
	handlers      map[intent.Type]handlerFunc
}

func NewDispatcher(op opener.Opener, windows Windows, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		opener:        op,
		windows:       windows,
		media:         media.Log{},
		musicPlatform: destination.PlatformYouTube,
		openTimeout:   20 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = map[intent.Type]handlerFunc{
		intent.TypeMusic:         d.music,
		intent.TypeShopping:      d.shopping,
		intent.TypeSearch:        d.search,
		intent.TypeTravel:        d.travel,
		intent.TypeGmail:         d.gmail,
		intent.TypeWhatsApp:      d.whatsapp,
		intent.TypePhone:         d.phone,
		intent.TypeMediaControl:  d.mediaControl,
		intent.TypeSearchReplace: d.searchReplace,
	}
	return d
}

// Dispatch runs the handler for in. A conversation intent returns a nil
// result and nil error: the caller should hand it to the responder.
//
// Every other intent produces exactly one statistics record and one
// automation_completed event, whether the handler succeeds, fails or
// panics. Handler errors come back as "Failed to execute <type> command:
// <cause>".
func (d *Dispatcher) Dispatch(ctx context.Context, in intent.Intent) (*Result, error) {
	if in.Type == intent.TypeConversation {
		return nil, nil
	}

	d.publish(eventbus.AutomationStarted, map[string]interface{}{"intent": in})

	res, err := d.run(ctx, in)
	success := err == nil && res != nil && res.Success

	if err != nil {
		err = koeerrors.HandlerFailure(string(in.Type), err)
		slog.Warn("Automation failed", "intent", in.Type, "error", err)
	} else {
		slog.Info("Automation executed", "intent", in.Type, "action", res.Action, "window_id", res.WindowID)
	}

	if d.stats != nil {
		d.stats.Record(ctx, string(in.Type), in.Subject(), success, err)
	}

	completed := map[string]interface{}{"intent": in, "success": success}
	if err != nil {
		completed["error"] = err.Error()
	} else {
		completed["result"] = res
	}
	d.publish(eventbus.AutomationCompleted, completed)

	if err != nil {
		return nil, err
	}
	return res, nil
}

// run invokes the handler and turns a panic into an error.
func (d *Dispatcher) run(ctx context.Context, in intent.Intent) (res *Result, err error) {
	defer concurrency.Recover("automation "+string(in.Type), func(r interface{}) {
		res, err = nil, concurrency.PanicError(r)
	})

	h, ok := d.handlers[in.Type]
	if !ok {
		return nil, koeerrors.UnknownIntentType(string(in.Type))
	}
	res, err = h(ctx, in)
	if err == nil && res == nil {
		err = fmt.Errorf("%s handler returned no result", in.Type)
	}
	return res, err
}

// open asks the opener for a destination. A refused or failed open is
// reported with failMsg so the user sees a remedy.
func (d *Dispatcher) open(ctx context.Context, target opener.Target, name, failMsg string) (opener.Handle, error) {
	openCtx, cancel := context.WithTimeout(ctx, d.openTimeout)
	defer cancel()

	h, err := d.opener.Open(openCtx, target, name)
	if err != nil {
		slog.Warn("Opener failed", "name", name, "url", target.URL, "category", koeerrors.Category(err), "error", err)
		return nil, koeerrors.OpenFailure(failMsg)
	}
	if h == nil {
		return nil, koeerrors.OpenFailure(failMsg)
	}
	return h, nil
}

// track hands h to the registry and returns the window id, "" when the
// registry declined it.
func (d *Dispatcher) track(h opener.Handle, windowType intent.Type, query, platform string) string {
	if d.windows == nil {
		return ""
	}
	id, _ := d.windows.Track(h, string(windowType), query, platform)
	return id
}

func (d *Dispatcher) publish(name string, payload map[string]interface{}) {
	if d.bus != nil {
		d.bus.Publish(name, payload)
	}
}

func (d *Dispatcher) timestamp() string {
	return d.now().Format(time.RFC3339)
}

func mismatch(in intent.Intent) error {
	return koeerrors.InvalidInput(fmt.Sprintf("payload %T does not match intent type %s", in.Payload, in.Type))
}
