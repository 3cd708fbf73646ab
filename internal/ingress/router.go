package ingress

import (
	"context"
	"strings"
	"sync"

	"github.com/google/shlex"
)

type DestinationType int

const (
	DestPipeline DestinationType = iota // resolve session, then queue
	DestCommand                         // run the registered handler inline
	DestDrop
)

type Destination struct {
	Type    DestinationType
	Handler func(context.Context, *Event) error
}

// StandardRouter marks slash-prefixed content as a command. Registered
// commands run inline; the rest travel the pipeline to the kernel's
// command handler.
type StandardRouter struct {
	commands map[string]func(context.Context, *Event) error
	mu       sync.RWMutex
}

func NewStandardRouter() *StandardRouter {
	return &StandardRouter{
		commands: make(map[string]func(context.Context, *Event) error),
	}
}

func (r *StandardRouter) Route(ctx context.Context, event *Event) Destination {
	content := strings.TrimSpace(event.Content)
	if content == "" {
		return Destination{Type: DestDrop}
	}
	if !strings.HasPrefix(content, "/") {
		return Destination{Type: DestPipeline}
	}

	parts, err := shlex.Split(content)
	if err != nil || len(parts) == 0 {
		return Destination{Type: DestPipeline}
	}

	r.mu.RLock()
	handler, exists := r.commands[parts[0]]
	r.mu.RUnlock()

	if exists {
		return Destination{Type: DestCommand, Handler: handler}
	}

	event.Type = TypeCommand
	return Destination{Type: DestPipeline}
}

func (r *StandardRouter) RegisterCommand(name string, handler func(context.Context, *Event) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = handler
}
