package adapter

import (
	"context"

	"github.com/harunnryd/koe/internal/eventbus"
)

// BusAdapter publishes replies as assistant_reply events, which is how
// clients of the HTTP event stream see answers to their utterances.
type BusAdapter struct {
	name string
	pub  eventbus.Publisher
}

func NewBusAdapter(name string, pub eventbus.Publisher) *BusAdapter {
	return &BusAdapter{name: name, pub: pub}
}

func (a *BusAdapter) Name() string {
	return a.name
}

func (a *BusAdapter) Send(ctx context.Context, out Outbound) error {
	a.pub.Publish(eventbus.AssistantReply, map[string]interface{}{
		"sessionId": out.SessionID,
		"kind":      out.Kind,
		"message":   out.Content,
	})
	return nil
}

func (a *BusAdapter) Health(ctx context.Context) error {
	return nil
}
