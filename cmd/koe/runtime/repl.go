package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/harunnryd/koe/internal/adapter"
	koeerrors "github.com/harunnryd/koe/internal/errors"
	"github.com/harunnryd/koe/internal/ingress"

	"github.com/oklog/ulid/v2"
)

// REPL reads utterances line by line and submits them as one cli session.
// Replies arrive asynchronously through the CLI adapter.
type REPL struct {
	components *RuntimeComponents
	in         io.Reader
	out        io.Writer
	sessionID  string
}

func NewREPL(components *RuntimeComponents, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		components: components,
		in:         in,
		out:        out,
		sessionID:  "cli:" + ulid.Make().String(),
	}
}

func (r *REPL) SessionID() string {
	return r.sessionID
}

// Start blocks until the input ends, the user types /exit or ctx is done.
func (r *REPL) Start(ctx context.Context) error {
	fmt.Fprintf(r.out, "Koe interactive session: %s\n", r.sessionID)
	fmt.Fprintln(r.out, "Say something like \"play lofi beats\". Type '/exit' to quit.")

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	r.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			text := strings.TrimSpace(line)
			switch text {
			case "":
				r.prompt()
				continue
			case "/exit", "/quit":
				return nil
			}
			if err := r.submit(ctx, text); err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
				r.prompt()
			}
		}
	}
}

func (r *REPL) submit(ctx context.Context, text string) error {
	eventType := ingress.TypeUtterance
	if strings.HasPrefix(text, "/") {
		eventType = ingress.TypeCommand
	}
	_, err := r.components.Ingress.Submit(ctx, adapter.Inbound{
		Source:    ingress.SourceCLI,
		SessionID: r.sessionID,
		Content:   text,
	}, eventType)
	if errors.Is(err, koeerrors.ErrTransient) {
		return fmt.Errorf("busy, try again")
	}
	if err != nil {
		slog.Debug("REPL submit failed", "error", err)
	}
	return err
}

func (r *REPL) prompt() {
	if r.components.CLI != nil {
		r.components.CLI.Prompt()
	}
}
