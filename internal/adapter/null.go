package adapter

import (
	"context"
	"log/slog"
)

// NullAdapter accepts replies for sources nobody listens to, such as
// routines, and only logs them.
type NullAdapter struct {
	name string
}

func NewNullAdapter(name string) *NullAdapter {
	if name == "" {
		name = "null"
	}
	return &NullAdapter{name: name}
}

func (a *NullAdapter) Name() string {
	return a.name
}

func (a *NullAdapter) Send(ctx context.Context, out Outbound) error {
	slog.Debug("Reply discarded", "adapter", a.name, "session", out.SessionID, "kind", out.Kind, "content", out.Content)
	return nil
}

func (a *NullAdapter) Health(ctx context.Context) error {
	return nil
}
