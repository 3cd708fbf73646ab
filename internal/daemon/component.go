package daemon

import (
	"context"
	"fmt"
)

type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

// ComponentHealth is one component's answer to a health probe. Details is
// rendered verbatim under the component in GET /health.
type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
	Details map[string]interface{}
}

func Healthy(name string, details map[string]interface{}) *ComponentHealth {
	return &ComponentHealth{Name: name, Healthy: true, Details: details}
}

func Unhealthy(name string, format string, args ...interface{}) *ComponentHealth {
	return &ComponentHealth{Name: name, Error: fmt.Errorf(format, args...)}
}

// Component is a unit of the koe runtime. The daemon initializes and starts
// components in dependency order and stops them in reverse.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}
