// Package opener opens external destinations and answers liveness queries
// about them.
package opener

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by openers that cannot perform an operation
// (for example focusing a tel: link).
var ErrUnsupported = errors.New("operation not supported by opener")

// Target describes what to open. URL is required; the other fields ask the
// opener to do extra in-page work once the page has loaded.
type Target struct {
	URL                     string
	NeedsAutoClick          bool
	NeedsAggressiveAutoplay bool
	Query                   string
}

// Handle is an opaque reference to something an Opener opened.
type Handle interface {
	Name() string
}

// Opener is the browser-side collaborator. Open returns a nil handle and a
// nil error when the destination was refused (popup blocked, browser gone).
type Opener interface {
	Open(ctx context.Context, target Target, name string) (Handle, error)
	IsClosed(ctx context.Context, h Handle) (bool, error)
	Close(ctx context.Context, h Handle) error
	Focus(ctx context.Context, h Handle) error
	Navigate(ctx context.Context, h Handle, url string) error
}
