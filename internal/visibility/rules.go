package visibility

import (
	"strings"

	surfaceerrors "github.com/conneroisu/surfacepool/internal/errors"
	"github.com/conneroisu/surfacepool/internal/types"
)

// gatedGlyphs are the glyph elements that can only be shown while both hand
// motions are visible. Reversals is deliberately absent.
var gatedGlyphs = []string{"TKA", "VTG", "Elemental", "Positions"}

// DefaultRules returns the built-in dependency table.
func DefaultRules() []types.DependencyRule {
	rules := make([]types.DependencyRule, 0, len(gatedGlyphs))
	for _, glyph := range gatedGlyphs {
		rules = append(rules, types.DependencyRule{
			Element: types.Key(types.ElementGlyph, glyph),
			Requires: []types.ElementKey{
				types.Key(types.ElementMotion, "blue"),
				types.Key(types.ElementMotion, "red"),
			},
		})
	}

	return rules
}

// ruleGraph is the validated, immutable form of a rule table.
type ruleGraph struct {
	requires   map[types.ElementKey][]types.ElementKey
	dependents map[types.ElementKey][]types.ElementKey
}

// buildRuleGraph merges rules for the same element, indexes dependents and
// rejects malformed keys and dependency cycles.
func buildRuleGraph(rules []types.DependencyRule) (*ruleGraph, error) {
	g := &ruleGraph{
		requires:   make(map[types.ElementKey][]types.ElementKey),
		dependents: make(map[types.ElementKey][]types.ElementKey),
	}

	seen := make(map[types.ElementKey]map[types.ElementKey]bool)
	for _, rule := range rules {
		if err := rule.Element.Validate(); err != nil {
			return nil, surfaceerrors.NewValidationError(surfaceerrors.ErrCodeInvalidElement, err.Error()).
				WithComponent("visibility")
		}
		if seen[rule.Element] == nil {
			seen[rule.Element] = make(map[types.ElementKey]bool)
		}
		for _, prereq := range rule.Requires {
			if err := prereq.Validate(); err != nil {
				return nil, surfaceerrors.NewValidationError(surfaceerrors.ErrCodeInvalidElement, err.Error()).
					WithComponent("visibility").
					WithContext("element", rule.Element.String())
			}
			if seen[rule.Element][prereq] {
				continue
			}
			seen[rule.Element][prereq] = true
			g.requires[rule.Element] = append(g.requires[rule.Element], prereq)
			g.dependents[prereq] = append(g.dependents[prereq], rule.Element)
		}
	}

	for _, list := range g.dependents {
		types.SortKeys(list)
	}

	if cycle := g.findCycle(); cycle != nil {
		names := make([]string, len(cycle))
		for i, key := range cycle {
			names[i] = key.String()
		}
		return nil, surfaceerrors.NewConfigError(surfaceerrors.ErrCodeRuleCycle,
			"dependency rules form a cycle: "+strings.Join(names, " -> "), nil).
			WithComponent("visibility")
	}

	return g, nil
}

// findCycle returns the first cycle found in the requires graph, closed by
// repeating its first element, or nil when the graph is acyclic.
func (g *ruleGraph) findCycle() []types.ElementKey {
	elements := make([]types.ElementKey, 0, len(g.requires))
	for element := range g.requires {
		elements = append(elements, element)
	}
	types.SortKeys(elements)

	visited := make(map[types.ElementKey]bool)
	onStack := make(map[types.ElementKey]bool)

	var path []types.ElementKey
	var visit func(types.ElementKey) []types.ElementKey
	visit = func(element types.ElementKey) []types.ElementKey {
		visited[element] = true
		onStack[element] = true
		path = append(path, element)

		for _, prereq := range g.requires[element] {
			if !visited[prereq] {
				if cycle := visit(prereq); cycle != nil {
					return cycle
				}
			} else if onStack[prereq] {
				for i, p := range path {
					if p == prereq {
						cycle := make([]types.ElementKey, 0, len(path)-i+1)
						cycle = append(cycle, path[i:]...)
						return append(cycle, prereq)
					}
				}
			}
		}

		onStack[element] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, element := range elements {
		if !visited[element] {
			if cycle := visit(element); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}

// rules returns the table as a sorted slice of copies.
func (g *ruleGraph) rules() []types.DependencyRule {
	elements := make([]types.ElementKey, 0, len(g.requires))
	for element := range g.requires {
		elements = append(elements, element)
	}
	types.SortKeys(elements)

	out := make([]types.DependencyRule, 0, len(elements))
	for _, element := range elements {
		requires := make([]types.ElementKey, len(g.requires[element]))
		copy(requires, g.requires[element])
		out = append(out, types.DependencyRule{Element: element, Requires: requires})
	}

	return out
}

// affected returns key followed by its transitive dependents, breadth-first,
// each level sorted, without duplicates.
func (g *ruleGraph) affected(key types.ElementKey) []types.ElementKey {
	order := []types.ElementKey{key}
	seen := map[types.ElementKey]bool{key: true}

	level := []types.ElementKey{key}
	for len(level) > 0 {
		var next []types.ElementKey
		for _, element := range level {
			for _, dependent := range g.dependents[element] {
				if !seen[dependent] {
					seen[dependent] = true
					next = append(next, dependent)
				}
			}
		}
		types.SortKeys(next)
		order = append(order, next...)
		level = next
	}

	return order
}
