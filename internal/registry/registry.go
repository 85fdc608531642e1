// Package registry keeps track of the consumers interested in visibility
// changes and broadcasts every change to all of them.
//
// The registry never owns a consumer. It stores a weak pointer and checks
// liveness on every dispatch, so a consumer may be dropped by its owner at
// any time without unregistering first. A failing consumer is recorded in
// the dispatch result and never stops delivery to the others.
//
// Consumers must not call back into the registry from Update: dispatch runs
// while the registry lock is held.
package registry

import (
	"context"
	"sync"
	"time"
	"weak"

	surfaceerrors "github.com/conneroisu/surfacepool/internal/errors"
	"github.com/conneroisu/surfacepool/internal/logging"
	"github.com/conneroisu/surfacepool/internal/types"
)

// Consumer is the whole contract a visual surface implements to receive
// visibility updates.
type Consumer interface {
	Update(elementType, name string, visible bool) error
}

// Disposable lets a consumer report that it was destroyed while its memory
// is still reachable, e.g. a surface that was closed but not yet collected.
type Disposable interface {
	Disposed() bool
}

// ConsumerPtr constrains Register to pointer consumers so the registry can
// hold them weakly.
type ConsumerPtr[T any] interface {
	*T
	Consumer
}

// FlagEngine is the part of the visibility engine the registry drives.
type FlagEngine interface {
	Flag(key types.ElementKey) bool
	SetFlag(key types.ElementKey, value bool) []types.VisibilityChangeEvent
	Snapshot() map[types.ElementKey]bool
}

// RegistrationID identifies one registration. Zero is never issued.
type RegistrationID uint64

// Registration describes a live registration.
type Registration struct {
	ID            RegistrationID `json:"id" yaml:"id"`
	ComponentType string         `json:"component_type" yaml:"component_type"`
	RegisteredAt  time.Time      `json:"registered_at" yaml:"registered_at"`
}

type entry struct {
	Registration
	resolve func() (Consumer, bool)
}

// Registry fans visibility changes out to registered consumers.
type Registry struct {
	mu      sync.Mutex
	engine  FlagEngine
	entries []*entry
	nextID  RegistrationID

	broadcasts uint64
	delivered  uint64
	failed     uint64
	pruned     uint64

	logger       logging.Logger
	errorHandler *surfaceerrors.ErrorHandler
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registry diagnostics.
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger.WithComponent("registry")
		}
	}
}

// New creates a registry that applies flag changes to engine.
func New(engine FlagEngine, opts ...Option) *Registry {
	r := &Registry{
		engine:  engine,
		entries: make([]*entry, 0),
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.errorHandler = surfaceerrors.NewErrorHandler(r.logger)

	return r
}

// Register adds a consumer. Only a weak pointer to it is kept. Past changes
// are not replayed: the caller reads current state itself, or calls Sync.
func Register[T any, P ConsumerPtr[T]](r *Registry, consumer P, componentType string) (RegistrationID, error) {
	if (*T)(consumer) == nil {
		return 0, surfaceerrors.NewValidationError(surfaceerrors.ErrCodeInvalidConsumer, "cannot register a nil consumer").
			WithComponent("registry")
	}

	handle := weak.Make((*T)(consumer))
	resolve := func() (Consumer, bool) {
		ptr := handle.Value()
		if ptr == nil {
			return nil, false
		}
		live := P(ptr)
		if disposable, ok := any(live).(Disposable); ok && disposable.Disposed() {
			return nil, false
		}
		return live, true
	}

	return r.add(componentType, resolve), nil
}

func (r *Registry) add(componentType string, resolve func() (Consumer, bool)) RegistrationID {
	if componentType == "" {
		componentType = "unknown"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	e := &entry{
		Registration: Registration{
			ID:            r.nextID,
			ComponentType: componentType,
			RegisteredAt:  time.Now(),
		},
		resolve: resolve,
	}
	r.entries = append(r.entries, e)

	r.logger.Debug(context.Background(), "Consumer registered",
		"registration_id", uint64(e.ID),
		"component_type", componentType,
		"registered", len(r.entries))

	return e.ID
}

// Unregister removes a registration. It is safe to call more than once and
// reports whether anything was removed.
func (r *Registry) Unregister(id RegistrationID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.removeLocked(id)
	if e == nil {
		return false
	}

	r.logger.Debug(context.Background(), "Consumer unregistered",
		"registration_id", uint64(id),
		"component_type", e.ComponentType)

	return true
}

func (r *Registry) removeLocked(id RegistrationID) *entry {
	for i, e := range r.entries {
		if e.ID == id {
			copy(r.entries[i:], r.entries[i+1:])
			r.entries[len(r.entries)-1] = nil
			r.entries = r.entries[:len(r.entries)-1]
			return e
		}
	}

	return nil
}

// Flag returns the base flag of key as stored by the engine.
func (r *Registry) Flag(key types.ElementKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.engine.Flag(key)
}

// ApplyVisibilityChange writes a base flag and delivers every resulting
// change, direct and cascading, to every live consumer in registration
// order. Stale consumers are pruned; consumer errors and panics are
// recorded. Neither stops delivery to the remaining consumers.
func (r *Registry) ApplyVisibilityChange(key types.ElementKey, value bool) types.DispatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.engine.SetFlag(key, value)
	result := types.DispatchResult{Events: events}
	if len(events) == 0 {
		return result
	}

	r.broadcasts++
	for _, event := range events {
		r.broadcastLocked(event, &result)
	}

	if result.Failed > 0 {
		r.logger.Warn(context.Background(), nil, "Visibility change partially delivered",
			"element", key.String(),
			"value", value,
			"attempted", result.Attempted,
			"succeeded", result.Succeeded,
			"failed", result.Failed)
	}

	return result
}

// Sync pushes the current effective value of every known element to one
// registered consumer. It is the pull a caller performs right after Register.
func (r *Registry) Sync(id RegistrationID) types.DispatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result types.DispatchResult

	var target *entry
	for _, e := range r.entries {
		if e.ID == id {
			target = e
			break
		}
	}
	if target == nil {
		return result
	}

	snapshot := r.engine.Snapshot()
	keys := make([]types.ElementKey, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	types.SortKeys(keys)

	for _, key := range keys {
		event := types.VisibilityChangeEvent{Element: key, Visible: snapshot[key]}
		result.Events = append(result.Events, event)
		if !r.deliverLocked(target, event, &result) {
			r.removeLocked(target.ID)
			break
		}
	}

	return result
}

// broadcastLocked delivers one event to every entry, pruning stale ones.
func (r *Registry) broadcastLocked(event types.VisibilityChangeEvent, result *types.DispatchResult) {
	live := r.entries[:0]
	for _, e := range r.entries {
		if r.deliverLocked(e, event, result) {
			live = append(live, e)
		}
	}
	for i := len(live); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = live
}

// deliverLocked dispatches one event to one entry. It returns false when the
// entry is stale and must be dropped.
func (r *Registry) deliverLocked(e *entry, event types.VisibilityChangeEvent, result *types.DispatchResult) bool {
	result.Attempted++

	consumer, ok := e.resolve()
	if !ok {
		err := surfaceerrors.NewDispatchError(surfaceerrors.ErrCodeStaleConsumer, "consumer is no longer live", nil).
			WithComponent("registry").
			WithContext("registration_id", uint64(e.ID)).
			WithContext("component_type", e.ComponentType)
		r.recordFailure(e, event, err, result)
		r.pruned++
		return false
	}

	if err := dispatch(consumer, event); err != nil {
		wrapped := surfaceerrors.NewDispatchError(surfaceerrors.ErrCodeConsumerUpdate, "consumer update failed", err).
			WithComponent("registry").
			WithContext("registration_id", uint64(e.ID)).
			WithContext("component_type", e.ComponentType).
			WithContext("element", event.Element.String())
		r.recordFailure(e, event, wrapped, result)
		return true
	}

	result.Succeeded++
	r.delivered++

	return true
}

func (r *Registry) recordFailure(e *entry, event types.VisibilityChangeEvent, err error, result *types.DispatchResult) {
	result.Failed++
	result.Failures = append(result.Failures, types.DispatchFailure{
		RegistrationID: uint64(e.ID),
		ComponentType:  e.ComponentType,
		Event:          event,
		Err:            err,
		Reason:         err.Error(),
	})
	r.failed++
	r.errorHandler.Handle(context.Background(), err)
}

// dispatch invokes the update contract, converting a panic into an error.
func dispatch(consumer Consumer, event types.VisibilityChangeEvent) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = surfaceerrors.FromPanic(recovered)
		}
	}()

	return consumer.Update(event.Element.Type, event.Element.Name, event.Visible)
}

// Prune drops every registration whose consumer is gone and returns how
// many were removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.entries[:0]
	for _, e := range r.entries {
		if _, ok := e.resolve(); ok {
			live = append(live, e)
		}
	}
	removed := len(r.entries) - len(live)
	for i := len(live); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = live
	r.pruned += uint64(removed)

	return removed
}

// Registrations returns the current registrations in registration order.
// Entries whose consumer has gone but was not yet pruned are included.
func (r *Registry) Registrations() []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Registration, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Registration
	}

	return out
}

// Count returns the number of registrations.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Stats returns registration and broadcast totals.
func (r *Registry) Stats() types.RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return types.RegistryStats{
		Registered: len(r.entries),
		Broadcasts: r.broadcasts,
		Delivered:  r.delivered,
		Failed:     r.failed,
		Pruned:     r.pruned,
	}
}
