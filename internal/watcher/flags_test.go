package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	surfaceerrors "github.com/conneroisu/surfacepool/internal/errors"
	"github.com/conneroisu/surfacepool/internal/registry"
	"github.com/conneroisu/surfacepool/internal/types"
	"github.com/conneroisu/surfacepool/internal/visibility"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red = types.Key(types.ElementMotion, "red")
	rev = types.Key(types.ElementGlyph, "Reversals")
	tka = types.Key(types.ElementGlyph, "TKA")
	vtg = types.Key(types.ElementGlyph, "VTG")
)

// recordingApplier keeps base flags in a map and records every write.
type recordingApplier struct {
	mu      sync.Mutex
	base    map[types.ElementKey]bool
	applied []FlagChange
}

func (a *recordingApplier) Flag(key types.ElementKey) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if visible, ok := a.base[key]; ok {
		return visible
	}
	return true
}

func (a *recordingApplier) ApplyVisibilityChange(key types.ElementKey, value bool) types.DispatchResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.base == nil {
		a.base = make(map[types.ElementKey]bool)
	}
	a.base[key] = value
	a.applied = append(a.applied, FlagChange{Element: key, Visible: value})
	return types.DispatchResult{Events: []types.VisibilityChangeEvent{{Element: key, Visible: value}}}
}

func (a *recordingApplier) changes() []FlagChange {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]FlagChange, len(a.applied))
	copy(out, a.applied)
	return out
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[types.ElementKey]bool
		wantErr  error
	}{
		{
			name:     "empty document",
			input:    "",
			expected: map[types.ElementKey]bool{},
		},
		{
			name:  "case is preserved",
			input: "\"glyph:TKA\": false\n\"motion:red\": true\n",
			expected: map[types.ElementKey]bool{
				tka: false,
				red: true,
			},
		},
		{
			name:    "malformed yaml",
			input:   "glyph:TKA: [",
			wantErr: &surfaceerrors.SurfaceError{Type: surfaceerrors.ErrorTypeConfig, Code: surfaceerrors.ErrCodeConfigInvalid},
		},
		{
			name:    "bad element key",
			input:   "\"TKA\": false\n",
			wantErr: surfaceerrors.ErrInvalidElement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, err := ParseFlags([]byte(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, flags)
		})
	}
}

func TestDiffFlags(t *testing.T) {
	tests := []struct {
		name     string
		base     map[types.ElementKey]bool
		restore  map[types.ElementKey]bool
		next     map[types.ElementKey]bool
		expected []FlagChange
	}{
		{
			name:     "nothing to nothing",
			expected: []FlagChange{},
		},
		{
			name:     "explicit true matches the base flag",
			next:     map[types.ElementKey]bool{tka: true},
			expected: []FlagChange{},
		},
		{
			name:     "new hidden flags are sorted",
			next:     map[types.ElementKey]bool{vtg: false, red: false, tka: false},
			expected: []FlagChange{{red, false}, {tka, false}, {vtg, false}},
		},
		{
			name:     "dropped flag restores its earlier value",
			base:     map[types.ElementKey]bool{tka: false, vtg: false},
			restore:  map[types.ElementKey]bool{tka: true, vtg: true},
			next:     map[types.ElementKey]bool{vtg: false},
			expected: []FlagChange{{tka, true}},
		},
		{
			name:     "flip",
			base:     map[types.ElementKey]bool{red: false},
			restore:  map[types.ElementKey]bool{red: true},
			next:     map[types.ElementKey]bool{red: true},
			expected: []FlagChange{{red, true}},
		},
		{
			name:     "file shows an element hidden by default",
			base:     map[types.ElementKey]bool{rev: false},
			next:     map[types.ElementKey]bool{rev: true},
			expected: []FlagChange{{rev, true}},
		},
		{
			name:     "dropped flag restores a hidden default",
			base:     map[types.ElementKey]bool{rev: true},
			restore:  map[types.ElementKey]bool{rev: false},
			expected: []FlagChange{{rev, false}},
		},
		{
			name:     "file agrees with a hidden default",
			base:     map[types.ElementKey]bool{rev: false},
			next:     map[types.ElementKey]bool{rev: false},
			expected: []FlagChange{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applier := &recordingApplier{base: tt.base}
			assert.Equal(t, tt.expected, DiffFlags(applier.Flag, tt.restore, tt.next))
		})
	}
}

func TestFlagSyncReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yml")
	applier := &recordingApplier{}
	flagSync := NewFlagSync(path, applier, nil)
	ctx := context.Background()

	// Missing file is empty.
	results, err := flagSync.Reload(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, os.WriteFile(path, []byte("\"motion:red\": false\n\"glyph:TKA\": false\n"), 0o644))
	results, err = flagSync.Reload(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []FlagChange{{red, false}, {tka, false}}, applier.changes())

	// A broken file leaves the flags alone.
	require.NoError(t, os.WriteFile(path, []byte("\"motion\": false\n"), 0o644))
	_, err = flagSync.Reload(ctx)
	assert.ErrorIs(t, err, surfaceerrors.ErrInvalidElement)
	assert.Len(t, applier.changes(), 2)

	require.NoError(t, os.WriteFile(path, []byte("\"motion:red\": false\n"), 0o644))
	results, err = flagSync.Reload(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, FlagChange{tka, true}, applier.changes()[2])

	require.NoError(t, os.Remove(path))
	_, err = flagSync.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, FlagChange{red, true}, applier.changes()[3])
}

func TestFlagSyncConfiguredDefaults(t *testing.T) {
	engine, err := visibility.NewEngine(visibility.DefaultRules(),
		visibility.WithDefaults(map[types.ElementKey]bool{rev: false}))
	require.NoError(t, err)
	reg := registry.New(engine)

	path := filepath.Join(t.TempDir(), "flags.yml")
	flagSync := NewFlagSync(path, reg, nil)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(path, []byte("\"glyph:Reversals\": true\n"), 0o644))
	results, err := flagSync.Reload(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []types.VisibilityChangeEvent{{Element: rev, Visible: true}}, results[0].Events)
	assert.True(t, engine.Flag(rev))
	assert.True(t, engine.Effective(rev))

	// Dropping the entry restores the configured default, not visible.
	require.NoError(t, os.WriteFile(path, []byte("\"motion:red\": false\n"), 0o644))
	_, err = flagSync.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, engine.Flag(rev))
	assert.False(t, engine.Flag(red))
	assert.False(t, engine.Effective(tka))

	// Naming the default value changes nothing.
	require.NoError(t, os.WriteFile(path, []byte("\"motion:red\": false\n\"glyph:Reversals\": false\n"), 0o644))
	results, err = flagSync.Reload(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, os.Remove(path))
	_, err = flagSync.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, engine.Flag(red))
	assert.True(t, engine.Effective(tka))
	assert.False(t, engine.Flag(rev))
}

func TestFlagSyncWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yml")
	require.NoError(t, os.WriteFile(path, []byte("\"glyph:VTG\": false\n"), 0o644))

	applier := &recordingApplier{}
	flagSync := NewFlagSync(path, applier, nil)

	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan []types.DispatchResult, 16)
	done := make(chan error, 1)
	go func() {
		done <- flagSync.Watch(ctx, 20*time.Millisecond, func(results []types.DispatchResult) {
			select {
			case reloads <- results:
			default:
			}
		})
	}()

	require.Eventually(t, func() bool {
		return len(applier.changes()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("\"glyph:VTG\": true\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(applier.changes()) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []FlagChange{{vtg, false}, {vtg, true}}, applier.changes())
	assert.NotEmpty(t, reloads)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
