// Package rules binds action-type names to their validators and appliers.
// The registry is populated once at startup and read-only afterwards.
package rules

import (
	"math"
	"sort"

	"gorm.io/gorm"

	"darkgrid/core/models"
)

// Context is the explicit state threaded into rule handlers: the session
// transaction, the tick being applied, and the action under dispatch.
type Context struct {
	Tx     *gorm.DB
	Tick   uint32
	Action *models.Action
}

// Rule validates and applies one action type. Validate runs first and must
// not mutate state; Apply performs the mutation and returns the result
// descriptor recorded in the replay log.
type Rule interface {
	Validate(ctx *Context, payload models.JSONMap) error
	Apply(ctx *Context, payload models.JSONMap) (models.JSONMap, error)
}

// Registry maps action-type names to rules. It is not safe for concurrent
// registration; register everything before serving.
type Registry struct {
	actions map[string]Rule
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Rule)}
}

// Register binds a rule under the given action-type name, replacing any
// prior binding.
func (r *Registry) Register(name string, rule Rule) {
	r.actions[name] = rule
}

// Lookup returns the rule bound to name.
func (r *Registry) Lookup(name string) (Rule, bool) {
	rule, ok := r.actions[name]
	return rule, ok
}

// Names lists the registered action types sorted ascending.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// payloadInt reads an integer payload field. JSON decoding yields float64,
// so integral floats are accepted; fractional values are not.
func payloadInt(payload models.JSONMap, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

func payloadString(payload models.JSONMap, key string) (string, bool) {
	s, ok := payload[key].(string)
	return s, ok
}

func payloadMap(payload models.JSONMap, key string) models.JSONMap {
	switch m := payload[key].(type) {
	case models.JSONMap:
		return m
	case map[string]any:
		return models.JSONMap(m)
	}
	return models.JSONMap{}
}
