package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses a duration string and falls back to defaultValue when empty.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	return d, nil
}

// durationFields lists every duration-valued key by its config path.
func (c *Config) durationFields() map[string]string {
	return map[string]string{
		"server.read_timeout":                c.Server.ReadTimeout,
		"server.write_timeout":               c.Server.WriteTimeout,
		"server.idle_timeout":                c.Server.IdleTimeout,
		"server.shutdown_timeout":            c.Server.ShutdownTimeout,
		"automation.open_timeout":            c.Automation.OpenTimeout,
		"window.poll_interval":               c.Window.PollInterval,
		"stats.redis.dial_timeout":           c.Stats.Redis.DialTimeout,
		"browser.navigation_timeout":         c.Browser.NavigationTimeout,
		"browser.autoclick_timeout":          c.Browser.AutoClickTimeout,
		"ingress.interactive_submit_timeout": c.Ingress.InteractiveSubmitTimeout,
		"ingress.drain_timeout":              c.Ingress.DrainTimeout,
		"ingress.drain_poll_interval":        c.Ingress.DrainPollInterval,
		"ingress.idempotency_ttl":            c.Ingress.IdempotencyTTL,
		"store.lock_timeout":                 c.Store.LockTimeout,
		"store.lock_retry":                   c.Store.LockRetry,
		"worker.shutdown_timeout":            c.Worker.ShutdownTimeout,
		"scheduler.tick_interval":            c.Scheduler.TickInterval,
		"scheduler.shutdown_timeout":         c.Scheduler.ShutdownTimeout,
		"scheduler.lease_duration":           c.Scheduler.LeaseDuration,
		"scheduler.in_flight_poll_interval":  c.Scheduler.InFlightPollInterval,
		"daemon.shutdown_timeout":            c.Daemon.ShutdownTimeout,
		"daemon.health_check_interval":       c.Daemon.HealthCheckInterval,
		"daemon.startup_shutdown_timeout":    c.Daemon.StartupShutdownTimeout,
		"daemon.preflight_timeout":           c.Daemon.PreflightTimeout,
		"daemon.stale_lock_ttl":              c.Daemon.StaleLockTTL,
	}
}

// ValidateDurations rejects unparsable or non-positive durations up front,
// naming the offending key. Empty values are left for the component default.
func (c *Config) ValidateDurations() error {
	for key, value := range c.durationFields() {
		if strings.TrimSpace(value) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s: must be positive, got %s", key, value)
		}
	}
	for i, m := range c.Models.Registry {
		if m.RequestTimeout == "" {
			continue
		}
		if d, err := time.ParseDuration(m.RequestTimeout); err != nil || d <= 0 {
			return fmt.Errorf("models.registry[%d].request_timeout: invalid duration %q", i, m.RequestTimeout)
		}
	}
	return nil
}
