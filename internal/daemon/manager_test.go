package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/koe/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal records lifecycle calls across components in call order.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(call string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type fakeComponent struct {
	name    string
	deps    []string
	log     *journal
	initErr error
	startEr error
	stopErr error
	health  *ComponentHealth
	healthE error
}

func newFake(log *journal, name string, deps ...string) *fakeComponent {
	return &fakeComponent{name: name, deps: deps, log: log, health: &ComponentHealth{Name: name, Healthy: true}}
}

func (f *fakeComponent) Name() string           { return f.name }
func (f *fakeComponent) Dependencies() []string { return f.deps }

func (f *fakeComponent) Init(ctx context.Context) error {
	f.log.add("init:" + f.name)
	return f.initErr
}

func (f *fakeComponent) Start(ctx context.Context) error {
	f.log.add("start:" + f.name)
	return f.startEr
}

func (f *fakeComponent) Stop(ctx context.Context) error {
	f.log.add("stop:" + f.name)
	return f.stopErr
}

func (f *fakeComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	return f.health, f.healthE
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Daemon: config.DaemonConfig{WorkspacePath: t.TempDir()},
	}
}

func TestNewDaemonRejectsEmptyWorkspace(t *testing.T) {
	_, err := NewDaemon("", &config.Config{})
	assert.Error(t, err)

	_, err = NewDaemon("default", nil)
	assert.Error(t, err)

	d, err := NewDaemon("default", &config.Config{})
	require.NoError(t, err)
	assert.Equal(t, StatusStarting, d.Health())
	assert.GreaterOrEqual(t, d.Uptime().Nanoseconds(), int64(0))
}

func TestValidateConfigCreatesWorkspaceUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	d, err := NewDaemon("living-room", &config.Config{Server: config.ServerConfig{Port: 8080}})
	require.NoError(t, err)
	require.NoError(t, d.validateConfig())

	_, err = os.Stat(filepath.Join(home, ".koe", "workspaces", "living-room"))
	assert.NoError(t, err)
}

func TestValidateConfigRejectsBadPort(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 70000
	d, err := NewDaemon("default", cfg)
	require.NoError(t, err)
	assert.Error(t, d.validateConfig())
}

func TestInitFollowsDependenciesAndStartReusesOrder(t *testing.T) {
	log := &journal{}
	d, _ := NewDaemon("default", testConfig(t))

	// Registered out of order on purpose.
	d.AddComponent(newFake(log, "HTTPServer", "Orchestrator"))
	d.AddComponent(newFake(log, "Orchestrator", "StoreWorker", "Automation"))
	d.AddComponent(newFake(log, "Automation", "StoreWorker"))
	d.AddComponent(newFake(log, "StoreWorker"))

	ctx := context.Background()
	require.NoError(t, d.initializeComponents(ctx))
	require.NoError(t, d.startComponents(ctx))
	d.shutdownComponents(ctx)

	assert.Equal(t, []string{
		"init:StoreWorker", "init:Automation", "init:Orchestrator", "init:HTTPServer",
		"start:StoreWorker", "start:Automation", "start:Orchestrator", "start:HTTPServer",
		"stop:HTTPServer", "stop:Orchestrator", "stop:Automation", "stop:StoreWorker",
	}, log.list())
	assert.Equal(t, StatusStopped, d.Health())
}

func TestInitRejectsCyclesAndMissingDependencies(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		log := &journal{}
		d, _ := NewDaemon("default", testConfig(t))
		d.AddComponent(newFake(log, "Ingress", "Workers"))
		d.AddComponent(newFake(log, "Workers", "Ingress"))

		err := d.initializeComponents(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "circular dependency")
		assert.Empty(t, log.list())
	})

	t.Run("missing", func(t *testing.T) {
		d, _ := NewDaemon("default", testConfig(t))
		d.AddComponent(newFake(&journal{}, "Scheduler", "Ingress"))

		err := d.initializeComponents(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Ingress")
	})
}

func TestInitFailureStopsAtFailingComponent(t *testing.T) {
	log := &journal{}
	d, _ := NewDaemon("default", testConfig(t))
	store := newFake(log, "StoreWorker")
	automation := newFake(log, "Automation", "StoreWorker")
	automation.initErr = errors.New("browser exploded")
	d.AddComponent(store)
	d.AddComponent(automation)
	d.AddComponent(newFake(log, "Orchestrator", "Automation"))

	err := d.initializeComponents(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Automation")
	assert.NotContains(t, log.list(), "init:Orchestrator")

	d.rollback(context.Background())
	assert.Contains(t, log.list(), "stop:StoreWorker")
	assert.NotContains(t, log.list(), "stop:Automation")
	assert.NotContains(t, log.list(), "stop:Orchestrator")
	assert.Equal(t, StatusStopped, d.Health())
}

func TestShutdownContinuesPastStopErrors(t *testing.T) {
	log := &journal{}
	d, _ := NewDaemon("default", testConfig(t))
	first := newFake(log, "StoreWorker")
	second := newFake(log, "Workers", "StoreWorker")
	second.stopErr = errors.New("lane stuck")
	d.AddComponent(first)
	d.AddComponent(second)

	require.NoError(t, d.initializeComponents(context.Background()))
	require.NoError(t, d.gracefulShutdown(context.Background(), time.Second))

	assert.Contains(t, log.list(), "stop:StoreWorker")
}

func TestComponentHealthReportsErrors(t *testing.T) {
	d, _ := NewDaemon("default", testConfig(t))
	healthy := newFake(&journal{}, "StoreWorker")
	sick := newFake(&journal{}, "Adapters")
	sick.health = &ComponentHealth{Name: "Adapters", Healthy: false, Error: errors.New("telegram down")}
	broken := newFake(&journal{}, "Scheduler")
	broken.health = nil
	broken.healthE = errors.New("no answer")
	d.AddComponent(healthy)
	d.AddComponent(sick)
	d.AddComponent(broken)

	healths := d.ComponentHealth()
	require.Len(t, healths, 3)
	assert.True(t, healths["StoreWorker"].Healthy)
	assert.False(t, healths["Adapters"].Healthy)
	assert.EqualError(t, healths["Adapters"].Error, "telegram down")
	assert.False(t, healths["Scheduler"].Healthy)
	assert.EqualError(t, healths["Scheduler"].Error, "no answer")

	assert.NotNil(t, d.Component("Adapters"))
	assert.Nil(t, d.Component("Missing"))
}
