package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/harunnryd/koe/internal/adapter"
	"github.com/harunnryd/koe/internal/config"
	"github.com/harunnryd/koe/internal/daemon"
	"github.com/harunnryd/koe/internal/daemon/components"
	"github.com/harunnryd/koe/internal/eventbus"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func integrationConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return &config.Config{
		Server:    config.ServerConfig{Port: freePort(t)},
		Browser:   config.BrowserConfig{Enabled: false},
		Stats:     config.StatsConfig{Backend: "memory", RetentionDays: 90, PruneSchedule: "@daily"},
		Window:    config.WindowConfig{PollInterval: "50ms"},
		Scheduler: config.SchedulerConfig{TickInterval: "100ms"},
		Store:     config.StoreConfig{LockTimeout: "200ms", LockRetry: "20ms", LockMaxRetry: 5},
		Daemon: config.DaemonConfig{
			WorkspacePath:       t.TempDir(),
			HealthCheckInterval: "50ms",
			ShutdownTimeout:     "5s",
		},
	}
}

// buildDaemon registers the same component graph the daemon command does.
func buildDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *components.AutomationComponent) {
	t.Helper()
	const workspaceID = "integration"

	d, err := daemon.NewDaemon(workspaceID, cfg)
	require.NoError(t, err)

	bus := eventbus.New()
	storeComp := components.NewStoreWorkerComponent(workspaceID, cfg.Daemon.WorkspacePath, &cfg.Store)
	automationComp := components.NewAutomationComponent(cfg, storeComp, bus)
	ingressComp := components.NewIngressComponent(storeComp, &cfg.Ingress)

	adapterMgr, err := adapter.NewRuntimeManager(cfg.Adapters, ingressComp.Handler(), adapter.RuntimeAdapterOptions{
		Bus:               bus,
		IncludeSystemNull: true,
	})
	require.NoError(t, err)

	orchComp := components.NewOrchestratorComponent(cfg, storeComp, automationComp, adapterMgr)
	workersComp := components.NewWorkersComponent(cfg, ingressComp, orchComp)
	adaptersComp := components.NewAdaptersComponent(adapterMgr)
	schedulerComp := components.NewSchedulerComponent(cfg, ingressComp, automationComp, workspaceID)
	httpComp := components.NewHTTPServerComponent(d, &cfg.Server, components.APIComponents{
		Automation:   automationComp,
		Orchestrator: orchComp,
		Ingress:      ingressComp,
	})

	for _, c := range []daemon.Component{storeComp, automationComp, orchComp, ingressComp, workersComp, adaptersComp, schedulerComp, httpComp} {
		d.AddComponent(c)
	}
	return d, automationComp
}

func runDaemon(t *testing.T, d *daemon.Daemon) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.Eventually(t, func() bool { return d.Health() == daemon.StatusRunning }, 5*time.Second, 20*time.Millisecond)

	stopped := false
	stop = func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			return fmt.Errorf("daemon did not stop")
		}
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func TestDaemonServesUtterancesEndToEnd(t *testing.T) {
	cfg := integrationConfig(t)
	d, automationComp := buildDaemon(t, cfg)
	stop := runDaemon(t, d)

	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/api/events", cfg.Server.Port), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return automationComp.Bus().Len() >= 2 }, 2*time.Second, 10*time.Millisecond)

	// An HTTP-sourced utterance flows through ingress, a worker lane and the
	// kernel, and its reply comes back on the bus.
	raw, _ := json.Marshal(map[string]string{"id": "e2e-1", "content": "open gmail"})
	resp, err := http.Post(base+"/api/v1/events", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var reply eventbus.Event
	for reply.Name != eventbus.AssistantReply {
		require.NoError(t, conn.ReadJSON(&reply))
	}
	assert.Equal(t, adapter.KindAutomation, reply.Payload["kind"])
	assert.NotEmpty(t, reply.Payload["message"])

	assert.Equal(t, 1, automationComp.Stats().Snapshot().TotalExecutions)
	assert.Equal(t, 1, automationComp.Registry().Len())

	healths := d.ComponentHealth()
	for _, name := range []string{"StoreWorker", "Automation", "Orchestrator", "Ingress", "Workers", "Adapters", "Scheduler", "HTTPServer"} {
		require.Contains(t, healths, name)
		assert.True(t, healths[name].Healthy, "%s: %v", name, healths[name].Error)
	}

	err = stop()
	assert.True(t, err == nil || errors.Is(err, context.Canceled), "unexpected stop error: %v", err)
	assert.Equal(t, daemon.StatusStopped, d.Health())
}

func TestDaemonRejectsSecondInstanceOnSameWorkspace(t *testing.T) {
	cfg := integrationConfig(t)
	first, _ := buildDaemon(t, cfg)
	stop := runDaemon(t, first)
	defer stop()

	second := *cfg
	second.Server.Port = freePort(t)
	d, _ := buildDaemon(t, &second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := d.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StoreWorker")
}

func TestDaemonRejectsInvalidPort(t *testing.T) {
	cfg := integrationConfig(t)
	cfg.Server.Port = 0
	d, _ := buildDaemon(t, cfg)

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}
