// Package pool keeps a bounded set of expensive visual surfaces that are
// handed out with Checkout and returned with Checkin instead of being rebuilt.
//
// The pool never blocks a caller: when no idle surface is available it
// builds an overflow surface on demand. Every operation is serialized by one
// mutex owned by the pool; the only work done while holding it is resetting
// a surface or building at most one surface.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	surfaceerrors "github.com/conneroisu/surfacepool/internal/errors"
	"github.com/conneroisu/surfacepool/internal/logging"
	"github.com/conneroisu/surfacepool/internal/types"
)

// DefaultCapacity is used for lazy initialization when none is configured.
const DefaultCapacity = 4

// State is the lifecycle state of a pooled instance.
type State int32

const (
	StateIdle State = iota
	StateCheckedOut
	StateDiscarded
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckedOut:
		return "checked_out"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Surface is the heavy visual object the pool manages. The pool knows
// nothing about drawing; it only configures a surface on checkout and
// resets it on checkin.
type Surface interface {
	// Configure applies size and container settings for the new owner.
	Configure(opts CheckoutOptions) error
	// Reset clears rendered content, detaches the surface from its owner
	// and hides it.
	Reset()
}

// Closer is implemented by surfaces that hold resources which must be
// released when the pool discards them.
type Closer interface {
	Close() error
}

// Factory builds one surface. It may fail; the pool tolerates that.
type Factory func() (Surface, error)

// CheckoutOptions carries the context applied to a surface on checkout.
type CheckoutOptions struct {
	Width     int
	Height    int
	Container string
	Owner     string
}

// Instance is the pool's handle for one surface.
type Instance struct {
	id       uint64
	overflow bool
	state    atomic.Int32
	surface  Surface
}

// ID returns the pool-unique identity of the instance.
func (i *Instance) ID() uint64 { return i.id }

// Surface returns the wrapped surface.
func (i *Instance) Surface() Surface { return i.surface }

// Overflow reports whether the instance was built on demand after the pool
// ran out of idle instances.
func (i *Instance) Overflow() bool { return i.overflow }

// State returns the current lifecycle state.
func (i *Instance) State() State { return State(i.state.Load()) }

func (i *Instance) setState(s State) { i.state.Store(int32(s)) }

// ResourcePool manages reusable surfaces.
//
// Invariants:
//   - every tracked instance is in exactly one of idle or checkedOut
//   - len(idle)+len(checkedOut) never exceeds capacity
//   - overflow instances are tracked separately and never counted against capacity
type ResourcePool struct {
	mu sync.Mutex

	factory     Factory
	capacity    int
	initialized bool

	idle       []*Instance
	checkedOut map[*Instance]struct{}
	overflow   map[*Instance]struct{}
	nextID     uint64

	totalCheckouts       uint64
	overflowCreated      uint64
	constructionFailures uint64
	doubleCheckins       uint64

	logger       logging.Logger
	errorHandler *surfaceerrors.ErrorHandler
}

// Option configures a ResourcePool.
type Option func(*ResourcePool)

// WithCapacity sets the capacity used when the pool initializes lazily.
func WithCapacity(capacity int) Option {
	return func(p *ResourcePool) {
		if capacity >= 0 {
			p.capacity = capacity
		}
	}
}

// WithLogger sets the logger used for pool diagnostics.
func WithLogger(logger logging.Logger) Option {
	return func(p *ResourcePool) {
		if logger != nil {
			p.logger = logger.WithComponent("pool")
		}
	}
}

// New creates an uninitialized pool that builds surfaces with factory.
func New(factory Factory, opts ...Option) *ResourcePool {
	p := &ResourcePool{
		factory:    factory,
		capacity:   DefaultCapacity,
		checkedOut: make(map[*Instance]struct{}),
		overflow:   make(map[*Instance]struct{}),
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.errorHandler = surfaceerrors.NewErrorHandler(p.logger)

	return p
}

// Initialize pre-builds up to capacity surfaces. It is a no-op when the pool
// is already initialized. A construction failure is logged and skipped, so
// the pool may end up holding fewer than capacity instances.
func (p *ResourcePool) Initialize(capacity int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.initializeLocked(capacity)
}

func (p *ResourcePool) initializeLocked(capacity int) {
	if p.initialized {
		return
	}
	if capacity < 0 {
		capacity = 0
	}

	perf := logging.StartOperation(p.logger, "initialize")

	p.capacity = capacity
	p.idle = make([]*Instance, 0, capacity)
	for slot := 0; slot < capacity; slot++ {
		inst, err := p.build(false)
		if err != nil {
			p.constructionFailures++
			p.errorHandler.Handle(context.Background(),
				surfaceerrors.NewConstructionError("surface construction failed during initialize", err).
					WithComponent("pool").
					WithContext("slot", slot))
			continue
		}
		inst.setState(StateIdle)
		p.idle = append(p.idle, inst)
	}
	p.initialized = true

	perf.End(context.Background())
	p.logger.Info(context.Background(), "Pool initialized",
		"capacity", capacity,
		"built", len(p.idle),
		"construction_failures", p.constructionFailures)
}

// Checkout hands out an idle surface configured with opts. When the pool is
// uninitialized it is initialized first. When no idle surface exists an
// overflow surface is built on demand; the only error Checkout returns is a
// failure to build that overflow surface.
func (p *ResourcePool) Checkout(opts CheckoutOptions) (*Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.initializeLocked(p.capacity)

	var inst *Instance
	if len(p.idle) > 0 {
		inst = p.idle[0]
		p.idle[0] = nil
		p.idle = p.idle[1:]
		p.checkedOut[inst] = struct{}{}
	} else {
		p.errorHandler.Handle(context.Background(),
			surfaceerrors.NewPoolError(surfaceerrors.ErrCodePoolExhausted, "no idle surface, building overflow surface").
				WithComponent("pool").
				WithContext("capacity", p.capacity).
				WithContext("checked_out", len(p.checkedOut)))

		built, err := p.build(true)
		if err != nil {
			p.constructionFailures++
			constructionErr := surfaceerrors.NewConstructionError("overflow surface construction failed", err).
				WithComponent("pool")
			p.errorHandler.Handle(context.Background(), constructionErr)
			return nil, constructionErr
		}
		inst = built
		p.overflowCreated++
		p.overflow[inst] = struct{}{}
	}

	if err := p.configure(inst, opts); err != nil {
		p.errorHandler.Handle(context.Background(),
			surfaceerrors.NewPoolError(surfaceerrors.ErrCodeSurfaceConfigure, "surface configure failed, handing out unconfigured").
				WithComponent("pool").
				WithContext("instance_id", inst.id).
				WithContext("cause", err.Error()))
	}

	inst.setState(StateCheckedOut)
	p.totalCheckouts++

	return inst, nil
}

// Checkin returns a surface to the pool. Checking in an instance the pool
// does not consider checked out is a programmer error: it is logged, the
// pool is left untouched, and an ErrDoubleCheckin error is returned.
func (p *ResourcePool) Checkin(inst *Instance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if inst == nil {
		return p.rejectCheckin(nil, "nil instance")
	}

	if _, ok := p.checkedOut[inst]; ok {
		delete(p.checkedOut, inst)
		if err := p.reset(inst); err != nil {
			p.discard(inst, err)
			return nil
		}
		inst.setState(StateIdle)
		p.idle = append(p.idle, inst)
		return nil
	}

	if _, ok := p.overflow[inst]; ok {
		delete(p.overflow, inst)
		if err := p.reset(inst); err != nil {
			p.discard(inst, err)
			return nil
		}
		// An overflow instance fills a slot left empty by a construction
		// failure; otherwise it is dropped.
		if p.initialized && len(p.idle)+len(p.checkedOut) < p.capacity {
			inst.overflow = false
			inst.setState(StateIdle)
			p.idle = append(p.idle, inst)
			p.logger.Debug(context.Background(), "Overflow surface adopted into pool", "instance_id", inst.id)
			return nil
		}
		p.discard(inst, nil)
		return nil
	}

	return p.rejectCheckin(inst, "instance is not checked out")
}

func (p *ResourcePool) rejectCheckin(inst *Instance, reason string) error {
	p.doubleCheckins++
	err := surfaceerrors.NewPoolError(surfaceerrors.ErrCodeDoubleCheckin, reason).WithComponent("pool")
	if inst != nil {
		err.WithContext("instance_id", inst.id).WithContext("state", inst.State().String())
	}
	p.errorHandler.Handle(context.Background(), err)

	return err
}

// Stats returns a snapshot of the pool.
func (p *ResourcePool) Stats() types.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := types.PoolStats{
		Idle:                 len(p.idle),
		CheckedOut:           len(p.checkedOut),
		Overflow:             len(p.overflow),
		Capacity:             p.capacity,
		Initialized:          p.initialized,
		TotalCheckouts:       p.totalCheckouts,
		OverflowCreated:      p.overflowCreated,
		ConstructionFailures: p.constructionFailures,
		DoubleCheckins:       p.doubleCheckins,
	}
	if p.capacity > 0 {
		stats.UtilizationPercent = float64(len(p.checkedOut)) / float64(p.capacity) * 100
	}

	return stats
}

// Teardown force-returns every checked-out instance, overflow included,
// discards all instances and leaves the pool uninitialized. Handles still
// held by callers are forgotten; checking them in later is rejected.
func (p *ResourcePool) Teardown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	forced := 0
	for _, held := range []map[*Instance]struct{}{p.checkedOut, p.overflow} {
		for inst := range held {
			if err := p.reset(inst); err != nil {
				p.logger.Warn(context.Background(), err, "Surface reset failed during teardown", "instance_id", inst.id)
			}
			forced++
			p.idle = append(p.idle, inst)
		}
	}

	discarded := len(p.idle)
	for _, inst := range p.idle {
		p.discard(inst, nil)
	}

	p.idle = nil
	p.checkedOut = make(map[*Instance]struct{})
	p.overflow = make(map[*Instance]struct{})
	p.initialized = false

	p.logger.Info(context.Background(), "Pool torn down",
		"forced_checkins", forced,
		"discarded", discarded)
}

// build calls the factory, converting a panic into an error.
func (p *ResourcePool) build(overflow bool) (inst *Instance, err error) {
	if p.factory == nil {
		return nil, fmt.Errorf("no surface factory configured")
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			inst = nil
			err = surfaceerrors.FromPanic(recovered)
		}
	}()

	surface, err := p.factory()
	if err != nil {
		return nil, err
	}
	if surface == nil {
		return nil, fmt.Errorf("factory returned a nil surface")
	}

	p.nextID++
	inst = &Instance{id: p.nextID, overflow: overflow, surface: surface}

	return inst, nil
}

func (p *ResourcePool) configure(inst *Instance, opts CheckoutOptions) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = surfaceerrors.FromPanic(recovered)
		}
	}()

	return inst.surface.Configure(opts)
}

func (p *ResourcePool) reset(inst *Instance) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = surfaceerrors.FromPanic(recovered)
		}
	}()

	inst.surface.Reset()

	return nil
}

// discard drops an instance for good, closing it when it holds resources.
func (p *ResourcePool) discard(inst *Instance, cause error) {
	inst.setState(StateDiscarded)
	if cause != nil {
		p.logger.Error(context.Background(), cause, "Surface reset failed, discarding instance", "instance_id", inst.id)
	}
	if closer, ok := inst.surface.(Closer); ok {
		if err := closer.Close(); err != nil {
			p.logger.Warn(context.Background(), err, "Surface close failed", "instance_id", inst.id)
		}
	}
}
