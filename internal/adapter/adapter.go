// Package adapter connects chat surfaces to the pipeline: input adapters
// turn platform messages into Inbound utterances, output adapters deliver
// replies back.
package adapter

import (
	"context"
)

// Inbound is an utterance received by an input adapter.
type Inbound struct {
	ID        string // platform message id, used for idempotency
	Source    string
	SessionID string // optional; derived from Metadata when empty
	Content   string
	Metadata  map[string]string // chat_id, channel_id, thread_ts, user_id
}

// Outbound is a reply for one session. Metadata is the session's metadata
// so adapters can find the chat it belongs to.
type Outbound struct {
	SessionID string
	Content   string
	Kind      string // reply, automation, command, error
	Metadata  map[string]string
}

const (
	KindReply      = "reply"
	KindAutomation = "automation"
	KindCommand    = "command"
	KindError      = "error"
)

// EventHandler receives every Inbound. It is usually the ingress submitter.
type EventHandler func(ctx context.Context, in Inbound) error

type InputAdapter interface {
	Name() string
	// Start begins listening and must return once ctx is cancelled or the
	// listener is running in the background.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) error
}

type OutputAdapter interface {
	Name() string
	Send(ctx context.Context, out Outbound) error
	Health(ctx context.Context) error
}
