package adapter

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"charm.land/lipgloss/v2"
)

const cliPrompt = "> "

// CLIAdapter prints replies to a terminal, colored by kind, and redraws
// the prompt after each one.
type CLIAdapter struct {
	mu     sync.Mutex
	out    io.Writer
	styles map[string]lipgloss.Style
}

func NewCLIAdapter(out io.Writer) *CLIAdapter {
	if out == nil {
		out = os.Stdout
	}
	return &CLIAdapter{
		out: out,
		styles: map[string]lipgloss.Style{
			KindReply:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
			KindAutomation: lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
			KindCommand:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
			KindError:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		},
	}
}

func (a *CLIAdapter) Name() string {
	return "cli"
}

func (a *CLIAdapter) Send(ctx context.Context, out Outbound) error {
	style, ok := a.styles[out.Kind]
	if !ok {
		style = a.styles[KindReply]
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintf(a.out, "\r\033[K%s\n%s", style.Render(out.Content), cliPrompt)
	return err
}

// Prompt prints the input prompt.
func (a *CLIAdapter) Prompt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprint(a.out, cliPrompt)
}

func (a *CLIAdapter) Health(ctx context.Context) error {
	return nil
}
