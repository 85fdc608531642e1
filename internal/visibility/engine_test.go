package visibility

import (
	"sync"
	"testing"

	surfaceerrors "github.com/conneroisu/surfacepool/internal/errors"
	"github.com/conneroisu/surfacepool/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	blue      = types.Key(types.ElementMotion, "blue")
	red       = types.Key(types.ElementMotion, "red")
	tka       = types.Key(types.ElementGlyph, "TKA")
	vtg       = types.Key(types.ElementGlyph, "VTG")
	elemental = types.Key(types.ElementGlyph, "Elemental")
	positions = types.Key(types.ElementGlyph, "Positions")
	reversals = types.Key(types.ElementGlyph, "Reversals")
	nonRadial = types.Key(types.ElementGrid, "non_radial_points")
)

func newDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultRules())
	require.NoError(t, err)
	return engine
}

func TestFlagDefaultsToVisible(t *testing.T) {
	engine := newDefaultEngine(t)

	assert.True(t, engine.Flag(tka))
	assert.True(t, engine.Flag(types.Key("glyph", "never_seen")))
	assert.True(t, engine.Effective(types.Key("glyph", "never_seen")))
}

func TestWithDefaults(t *testing.T) {
	engine, err := NewEngine(DefaultRules(), WithDefaults(map[types.ElementKey]bool{
		nonRadial: false,
		blue:      false,
	}))
	require.NoError(t, err)

	assert.False(t, engine.Flag(nonRadial))
	assert.False(t, engine.Effective(tka))
	assert.True(t, engine.Flag(tka))
}

func TestBasePreservedUnderGating(t *testing.T) {
	engine := newDefaultEngine(t)

	engine.SetFlag(red, false)
	engine.SetFlag(tka, true)

	assert.False(t, engine.Effective(tka))
	assert.True(t, engine.Flag(tka))

	engine.SetFlag(red, true)
	assert.True(t, engine.Effective(tka))
}

func TestBaseFalseSurvivesPrerequisiteRoundTrip(t *testing.T) {
	engine := newDefaultEngine(t)

	engine.SetFlag(tka, false)
	engine.SetFlag(blue, false)
	engine.SetFlag(blue, true)

	assert.False(t, engine.Flag(tka))
	assert.False(t, engine.Effective(tka))
}

func TestIndependentElementsUnaffected(t *testing.T) {
	engine := newDefaultEngine(t)

	engine.SetFlag(red, false)
	assert.Equal(t, engine.Flag(reversals), engine.Effective(reversals))
	assert.True(t, engine.Effective(reversals))
	assert.True(t, engine.Effective(nonRadial))

	engine.SetFlag(reversals, false)
	assert.Equal(t, engine.Flag(reversals), engine.Effective(reversals))
	assert.False(t, engine.Effective(reversals))
}

func TestEndToEndScenario(t *testing.T) {
	engine := newDefaultEngine(t)

	assert.True(t, engine.Effective(reversals))

	engine.SetFlag(red, false)
	assert.False(t, engine.Effective(tka))
	assert.True(t, engine.Effective(reversals))

	engine.SetFlag(tka, true)
	assert.False(t, engine.Effective(tka))
	assert.True(t, engine.Effective(reversals))

	engine.SetFlag(red, true)
	assert.True(t, engine.Effective(tka))
	assert.True(t, engine.Effective(reversals))
}

func TestSetFlagEvents(t *testing.T) {
	t.Run("prerequisite change cascades to dependents", func(t *testing.T) {
		engine := newDefaultEngine(t)

		events := engine.SetFlag(red, false)

		assert.Equal(t, []types.VisibilityChangeEvent{
			{Element: red, Visible: false},
			{Element: elemental, Visible: false},
			{Element: positions, Visible: false},
			{Element: tka, Visible: false},
			{Element: vtg, Visible: false},
		}, events)
	})

	t.Run("dependents already hidden are not re-announced", func(t *testing.T) {
		engine := newDefaultEngine(t)
		engine.SetFlag(tka, false)

		events := engine.SetFlag(red, false)

		for _, event := range events {
			assert.NotEqual(t, tka, event.Element)
		}
		assert.Len(t, events, 4)
	})

	t.Run("second prerequisite does not re-announce gated elements", func(t *testing.T) {
		engine := newDefaultEngine(t)
		engine.SetFlag(red, false)

		events := engine.SetFlag(blue, false)

		assert.Equal(t, []types.VisibilityChangeEvent{{Element: blue, Visible: false}}, events)
	})

	t.Run("unchanged value emits nothing", func(t *testing.T) {
		engine := newDefaultEngine(t)
		assert.Empty(t, engine.SetFlag(reversals, true))
	})

	t.Run("base write under gate emits nothing", func(t *testing.T) {
		engine := newDefaultEngine(t)
		engine.SetFlag(red, false)
		engine.SetFlag(tka, false)

		assert.Empty(t, engine.SetFlag(tka, true))
	})

	t.Run("restoring prerequisite announces restored dependents", func(t *testing.T) {
		engine := newDefaultEngine(t)
		engine.SetFlag(red, false)
		engine.SetFlag(vtg, false)

		events := engine.SetFlag(red, true)

		assert.Equal(t, []types.VisibilityChangeEvent{
			{Element: red, Visible: true},
			{Element: elemental, Visible: true},
			{Element: positions, Visible: true},
			{Element: tka, Visible: true},
		}, events)
	})
}

func TestRuleChains(t *testing.T) {
	grid := types.Key(types.ElementGrid, "diamond")
	points := types.Key(types.ElementGrid, "hand_points")
	labels := types.Key(types.ElementGrid, "point_labels")

	engine, err := NewEngine([]types.DependencyRule{
		{Element: points, Requires: []types.ElementKey{grid}},
		{Element: labels, Requires: []types.ElementKey{points}},
	})
	require.NoError(t, err)

	events := engine.SetFlag(grid, false)
	assert.Equal(t, []types.VisibilityChangeEvent{
		{Element: grid, Visible: false},
		{Element: points, Visible: false},
		{Element: labels, Visible: false},
	}, events)

	assert.True(t, engine.Flag(labels))
	assert.False(t, engine.Effective(labels))

	engine.SetFlag(grid, true)
	assert.True(t, engine.Effective(labels))

	engine.SetFlag(points, false)
	assert.False(t, engine.Effective(labels))
	assert.True(t, engine.Effective(grid))
}

func TestNewEngineValidation(t *testing.T) {
	a := types.Key("glyph", "A")
	b := types.Key("glyph", "B")
	c := types.Key("glyph", "C")

	t.Run("self dependency is a cycle", func(t *testing.T) {
		_, err := NewEngine([]types.DependencyRule{{Element: a, Requires: []types.ElementKey{a}}})
		assert.ErrorIs(t, err, surfaceerrors.ErrRuleCycle)
	})

	t.Run("indirect cycle", func(t *testing.T) {
		_, err := NewEngine([]types.DependencyRule{
			{Element: a, Requires: []types.ElementKey{b}},
			{Element: b, Requires: []types.ElementKey{c}},
			{Element: c, Requires: []types.ElementKey{a}},
		})
		require.ErrorIs(t, err, surfaceerrors.ErrRuleCycle)
		assert.Contains(t, err.Error(), "glyph:A")
	})

	t.Run("malformed key", func(t *testing.T) {
		_, err := NewEngine([]types.DependencyRule{{Element: types.Key("", "A"), Requires: []types.ElementKey{b}}})
		assert.ErrorIs(t, err, surfaceerrors.ErrInvalidElement)
	})

	t.Run("duplicate rules merge", func(t *testing.T) {
		engine, err := NewEngine([]types.DependencyRule{
			{Element: a, Requires: []types.ElementKey{b}},
			{Element: a, Requires: []types.ElementKey{b, c}},
		})
		require.NoError(t, err)
		assert.Equal(t, []types.ElementKey{b, c}, engine.Requires(a))
	})

	t.Run("empty table", func(t *testing.T) {
		engine, err := NewEngine(nil)
		require.NoError(t, err)
		engine.SetFlag(a, false)
		assert.False(t, engine.Effective(a))
		assert.Empty(t, engine.Rules())
	})
}

func TestIntrospection(t *testing.T) {
	engine := newDefaultEngine(t)

	rules := engine.Rules()
	require.Len(t, rules, 4)
	assert.Equal(t, elemental, rules[0].Element)

	assert.Equal(t, []types.ElementKey{elemental, positions, tka, vtg}, engine.Dependents(red))
	assert.Empty(t, engine.Dependents(reversals))
	assert.Equal(t, []types.ElementKey{blue, red}, engine.Requires(tka))

	engine.SetFlag(reversals, false)
	elements := engine.Elements()
	assert.Contains(t, elements, reversals)
	assert.Contains(t, elements, blue)
	assert.Len(t, elements, 7)

	engine.SetFlag(blue, false)
	snapshot := engine.Snapshot()
	assert.False(t, snapshot[blue])
	assert.False(t, snapshot[tka])
	assert.False(t, snapshot[reversals])
	assert.True(t, snapshot[red])
}

func TestConcurrentSetAndRead(t *testing.T) {
	engine := newDefaultEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				engine.SetFlag(red, (n+i)%2 == 0)
			}
		}(i)
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				_ = engine.Effective(tka)
				_ = engine.Snapshot()
			}
		}()
	}
	wg.Wait()

	engine.SetFlag(red, true)
	assert.True(t, engine.Effective(tka))
	assert.True(t, engine.Flag(tka))
}
