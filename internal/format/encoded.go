package format

import (
	"encoding/json"
	"strings"

	"github.com/harunnryd/koe/internal/scheduler"
	"github.com/harunnryd/koe/internal/stats"
	"github.com/harunnryd/koe/internal/store"
	"github.com/harunnryd/koe/internal/window"

	"gopkg.in/yaml.v3"
)

// encoded renders every value through one marshal function.
type encoded struct {
	marshal func(v interface{}) (string, error)
}

func NewJSONFormatter() Formatter {
	return encoded{marshal: func(v interface{}) (string, error) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}}
}

// NewYAMLFormatter goes through JSON first so field names match the JSON
// tags instead of yaml.v3's lowercased Go names.
func NewYAMLFormatter() Formatter {
	return encoded{marshal: func(v interface{}) (string, error) {
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return "", err
		}
		data, err := yaml.Marshal(generic)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}}
}

func (e encoded) Stats(s stats.Snapshot) (string, error) { return e.marshal(s) }

func (e encoded) Windows(w []window.Entry) (string, error) {
	if w == nil {
		w = []window.Entry{}
	}
	return e.marshal(w)
}

func (e encoded) Routines(r []scheduler.Routine) (string, error) {
	if r == nil {
		r = []scheduler.Routine{}
	}
	return e.marshal(r)
}

func (e encoded) Sessions(s []store.SessionMeta) (string, error) {
	if s == nil {
		s = []store.SessionMeta{}
	}
	return e.marshal(s)
}
