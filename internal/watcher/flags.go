package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	surfaceerrors "github.com/conneroisu/surfacepool/internal/errors"
	"github.com/conneroisu/surfacepool/internal/logging"
	"github.com/conneroisu/surfacepool/internal/types"
	"gopkg.in/yaml.v3"
)

// FlagApplier applies one base flag change and reports the broadcast. Flag
// returns the base value currently stored for an element.
type FlagApplier interface {
	Flag(key types.ElementKey) bool
	ApplyVisibilityChange(key types.ElementKey, value bool) types.DispatchResult
}

// FlagChange is one base flag that differs between two versions of a flag file.
type FlagChange struct {
	Element types.ElementKey
	Visible bool
}

// ParseFlags decodes a flag file: a YAML mapping of "type:name" to a boolean.
func ParseFlags(data []byte) (map[types.ElementKey]bool, error) {
	raw := make(map[string]bool)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, surfaceerrors.NewConfigError(surfaceerrors.ErrCodeConfigInvalid, "malformed flag file", err)
	}

	flags := make(map[types.ElementKey]bool, len(raw))
	for element, visible := range raw {
		key, err := types.ParseElementKey(element)
		if err != nil {
			return nil, &surfaceerrors.SurfaceError{
				Type:    surfaceerrors.ErrorTypeValidation,
				Code:    surfaceerrors.ErrCodeInvalidElement,
				Message: "invalid element in flag file",
				Cause:   err,
			}
		}
		flags[key] = visible
	}

	return flags, nil
}

// DiffFlags lists the writes that bring base flags in line with next, sorted
// by element. base reports the current base value of an element. restore
// holds the value each element had before the file first named it; an
// element the file no longer names goes back to that value.
func DiffFlags(base func(types.ElementKey) bool, restore, next map[types.ElementKey]bool) []FlagChange {
	targets := make(map[types.ElementKey]bool, len(next)+len(restore))
	for key, original := range restore {
		if _, ok := next[key]; !ok {
			targets[key] = original
		}
	}
	for key, visible := range next {
		targets[key] = visible
	}

	keys := make([]types.ElementKey, 0, len(targets))
	for key, visible := range targets {
		if base(key) != visible {
			keys = append(keys, key)
		}
	}
	types.SortKeys(keys)

	changes := make([]FlagChange, len(keys))
	for i, key := range keys {
		changes[i] = FlagChange{Element: key, Visible: targets[key]}
	}

	return changes
}

// FlagSync mirrors a flag file into a FlagApplier.
type FlagSync struct {
	path    string
	applier FlagApplier
	logger  logging.Logger

	mu sync.Mutex
	// restore is the base value of every element the file currently names,
	// taken before the file first changed it.
	restore map[types.ElementKey]bool
}

// NewFlagSync creates a sync for the file at path. Nothing is read until Reload.
func NewFlagSync(path string, applier FlagApplier, logger logging.Logger) *FlagSync {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FlagSync{
		path:    path,
		applier: applier,
		logger:  logger.WithComponent("flag_sync"),
		restore: make(map[types.ElementKey]bool),
	}
}

// Reload reads the file and applies every flag that differs from the
// applier's base value. A file that cannot be read or parsed leaves the
// current flags untouched. A missing file counts as empty, so every flag it
// used to set goes back to its value from before the file.
func (s *FlagSync) Reload(ctx context.Context) ([]types.DispatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[types.ElementKey]bool)
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		next, err = ParseFlags(data)
		if err != nil {
			var se *surfaceerrors.SurfaceError
			if errors.As(err, &se) {
				se.WithContext("path", s.path)
			}
			return nil, err
		}
	case os.IsNotExist(err):
		s.logger.Warn(ctx, err, "Flag file missing, restoring flags", "path", s.path)
	default:
		return nil, surfaceerrors.NewIOError(surfaceerrors.ErrCodeFileNotFound, "failed to read flag file", err).
			WithContext("path", s.path)
	}

	return s.applyLocked(ctx, next), nil
}

// applyLocked brings the applier in line with next and records, for every
// element next names for the first time, the base value to restore later.
func (s *FlagSync) applyLocked(ctx context.Context, next map[types.ElementKey]bool) []types.DispatchResult {
	changes := DiffFlags(s.applier.Flag, s.restore, next)

	for key := range s.restore {
		if _, ok := next[key]; !ok {
			delete(s.restore, key)
		}
	}
	for key := range next {
		if _, ok := s.restore[key]; !ok {
			s.restore[key] = s.applier.Flag(key)
		}
	}

	results := make([]types.DispatchResult, 0, len(changes))
	for _, change := range changes {
		result := s.applier.ApplyVisibilityChange(change.Element, change.Visible)
		results = append(results, result)
		s.logger.Info(ctx, "Flag applied",
			"element", change.Element.String(),
			"visible", change.Visible,
			"events", len(result.Events),
			"succeeded", result.Succeeded,
			"failed", result.Failed)
	}

	return results
}

// Watch reloads the file on every debounced change until ctx is done. The
// file is loaded once before watching starts, and that load is reported too.
func (s *FlagSync) Watch(ctx context.Context, debounce time.Duration, onReload func([]types.DispatchResult)) error {
	initial, err := s.Reload(ctx)
	if err != nil {
		return err
	}
	if onReload != nil && len(initial) > 0 {
		onReload(initial)
	}

	fw, err := NewFileWatcher(debounce, s.logger)
	if err != nil {
		return surfaceerrors.NewIOError(surfaceerrors.ErrCodeInternalError, "failed to create file watcher", err)
	}
	defer fw.Stop()

	target, err := cleanAbs(s.path)
	if err != nil {
		return err
	}
	// Editors replace files by rename, so the directory is watched.
	if err := fw.AddPath(filepath.Dir(target)); err != nil {
		return surfaceerrors.NewIOError(surfaceerrors.ErrCodeFileNotFound, "failed to watch flag file", err).
			WithContext("path", s.path)
	}
	fw.AddFilter(PathFilter(s.path))
	fw.AddHandler(func([]ChangeEvent) error {
		results, err := s.Reload(ctx)
		if err != nil {
			return err
		}
		if onReload != nil {
			onReload(results)
		}
		return nil
	})

	if err := fw.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	return nil
}
