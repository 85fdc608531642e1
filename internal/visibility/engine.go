// Package visibility derives the effective visibility of display elements
// from independently set base flags and a static table of dependency rules.
//
// Base flags are only ever written by SetFlag. Dependency evaluation never
// touches them: when a prerequisite is hidden, the dependent's effective
// value is forced false while its base value is preserved, so restoring the
// prerequisite restores exactly the value last set for the dependent.
package visibility

import (
	"context"
	"sync"

	"github.com/conneroisu/surfacepool/internal/logging"
	"github.com/conneroisu/surfacepool/internal/types"
)

// defaultVisible is the base value of an element that was never set.
const defaultVisible = true

// Engine holds base flags and evaluates effective visibility.
type Engine struct {
	mu     sync.RWMutex
	base   map[types.ElementKey]bool
	graph  *ruleGraph
	logger logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaults seeds base flags before any SetFlag call.
func WithDefaults(defaults map[types.ElementKey]bool) Option {
	return func(e *Engine) {
		for key, value := range defaults {
			e.base[key] = value
		}
	}
}

// WithLogger sets the logger used for engine diagnostics.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.WithComponent("visibility")
		}
	}
}

// NewEngine validates rules and returns an engine over them. Rules for the
// same element are merged. A malformed key or a dependency cycle is rejected.
func NewEngine(rules []types.DependencyRule, opts ...Option) (*Engine, error) {
	graph, err := buildRuleGraph(rules)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		base:   make(map[types.ElementKey]bool),
		graph:  graph,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Flag returns the stored base value of key, true if it was never set.
func (e *Engine) Flag(key types.ElementKey) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.flagLocked(key)
}

// Effective returns base AND the effective value of every prerequisite.
// Elements without a rule are effective exactly when their base flag is set.
func (e *Engine) Effective(key types.ElementKey) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.effectiveLocked(key)
}

// SetFlag stores a base value and returns one event for every element whose
// effective value changed as a result: key itself first, then dependents
// breadth-first.
func (e *Engine) SetFlag(key types.ElementKey, value bool) []types.VisibilityChangeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	affected := e.graph.affected(key)
	before := make([]bool, len(affected))
	for i, element := range affected {
		before[i] = e.effectiveLocked(element)
	}

	e.base[key] = value

	var events []types.VisibilityChangeEvent
	for i, element := range affected {
		after := e.effectiveLocked(element)
		if after != before[i] {
			events = append(events, types.VisibilityChangeEvent{Element: element, Visible: after})
		}
	}

	e.logger.Debug(context.Background(), "Flag set",
		"element", key.String(),
		"value", value,
		"affected", len(affected),
		"changed", len(events))

	return events
}

// Rules returns a copy of the dependency table, sorted by element.
func (e *Engine) Rules() []types.DependencyRule {
	return e.graph.rules()
}

// Requires returns the direct prerequisites of key.
func (e *Engine) Requires(key types.ElementKey) []types.ElementKey {
	requires := e.graph.requires[key]
	out := make([]types.ElementKey, len(requires))
	copy(out, requires)
	return out
}

// Dependents returns the elements whose rule lists key directly.
func (e *Engine) Dependents(key types.ElementKey) []types.ElementKey {
	dependents := e.graph.dependents[key]
	out := make([]types.ElementKey, len(dependents))
	copy(out, dependents)
	return out
}

// Elements returns every element the engine knows about: anything with a
// base flag, a rule, or a place in another element's rule. Sorted.
func (e *Engine) Elements() []types.ElementKey {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.elementsLocked()
}

// Snapshot returns the effective value of every known element.
func (e *Engine) Snapshot() map[types.ElementKey]bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snapshot := make(map[types.ElementKey]bool)
	for _, key := range e.elementsLocked() {
		snapshot[key] = e.effectiveLocked(key)
	}

	return snapshot
}

func (e *Engine) elementsLocked() []types.ElementKey {
	seen := make(map[types.ElementKey]bool)
	for key := range e.base {
		seen[key] = true
	}
	for element, requires := range e.graph.requires {
		seen[element] = true
		for _, prereq := range requires {
			seen[prereq] = true
		}
	}

	keys := make([]types.ElementKey, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	types.SortKeys(keys)

	return keys
}

func (e *Engine) flagLocked(key types.ElementKey) bool {
	if value, ok := e.base[key]; ok {
		return value
	}
	return defaultVisible
}

// effectiveLocked recurses through prerequisites; the rule graph is acyclic.
func (e *Engine) effectiveLocked(key types.ElementKey) bool {
	if !e.flagLocked(key) {
		return false
	}
	for _, prereq := range e.graph.requires[key] {
		if !e.effectiveLocked(prereq) {
			return false
		}
	}
	return true
}
