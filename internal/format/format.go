// Package format renders stats, windows, routines and sessions for the
// command line as a table, JSON or YAML.
package format

import (
	"fmt"
	"strings"

	"github.com/harunnryd/koe/internal/scheduler"
	"github.com/harunnryd/koe/internal/stats"
	"github.com/harunnryd/koe/internal/store"
	"github.com/harunnryd/koe/internal/window"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

type Formatter interface {
	Stats(stats.Snapshot) (string, error)
	Windows([]window.Entry) (string, error)
	Routines([]scheduler.Routine) (string, error)
	Sessions([]store.SessionMeta) (string, error)
}

func New(format OutputFormat) (Formatter, error) {
	switch format {
	case OutputFormatTable:
		return NewTableFormatter(), nil
	case OutputFormatJSON:
		return NewJSONFormatter(), nil
	case OutputFormatYAML:
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, json, yaml)", format)
	}
}

func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	switch format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (supported: table, json, yaml)", s)
	}
}
