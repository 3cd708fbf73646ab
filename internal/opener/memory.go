package opener

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Memory is an Opener that keeps pages as in-process records. It is used
// when no browser is configured: the URL is logged so the user can follow it,
// and the page stays "open" until closed through the registry.
type Memory struct {
	mu     sync.Mutex
	seq    int
	pages  map[string]*memoryPage
	refuse bool
}

type memoryPage struct {
	name    string
	url     string
	closed  bool
	focused int
}

func (p *memoryPage) Name() string { return p.name }

func NewMemory() *Memory {
	return &Memory{pages: make(map[string]*memoryPage)}
}

// Refuse makes subsequent Open calls behave like a blocked popup.
func (m *Memory) Refuse(refuse bool) {
	m.mu.Lock()
	m.refuse = refuse
	m.mu.Unlock()
}

func (m *Memory) Open(ctx context.Context, target Target, name string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse {
		return nil, nil
	}
	m.seq++
	p := &memoryPage{name: fmt.Sprintf("%s#%d", name, m.seq), url: target.URL}
	m.pages[p.name] = p
	slog.Info("Destination ready", "name", name, "url", target.URL, "autoclick", target.NeedsAutoClick)
	return p, nil
}

func (m *Memory) IsClosed(_ context.Context, h Handle) (bool, error) {
	p, err := m.page(h)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.closed, nil
}

func (m *Memory) Close(_ context.Context, h Handle) error {
	p, err := m.page(h)
	if err != nil {
		return err
	}
	m.mu.Lock()
	p.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Focus(_ context.Context, h Handle) error {
	p, err := m.page(h)
	if err != nil {
		return err
	}
	m.mu.Lock()
	p.focused++
	m.mu.Unlock()
	return nil
}

// Focused reports how many times a handle was brought to the front.
func (m *Memory) Focused(h Handle) int {
	p, err := m.page(h)
	if err != nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.focused
}

func (m *Memory) Navigate(_ context.Context, h Handle, url string) error {
	p, err := m.page(h)
	if err != nil {
		return err
	}
	m.mu.Lock()
	p.url = url
	m.mu.Unlock()
	slog.Info("Destination updated", "name", p.name, "url", url)
	return nil
}

// URL reports where a handle currently points.
func (m *Memory) URL(h Handle) string {
	p, err := m.page(h)
	if err != nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.url
}

// Pages lists the names of pages that are still open, sorted.
func (m *Memory) Pages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name, p := range m.pages {
		if !p.closed {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Memory) page(h Handle) (*memoryPage, error) {
	p, ok := h.(*memoryPage)
	if !ok || p == nil {
		return nil, fmt.Errorf("foreign handle %T", h)
	}
	return p, nil
}
