package cmd

import (
	"errors"
	"sync"

	"github.com/conneroisu/surfacepool/internal/di"
	"github.com/conneroisu/surfacepool/internal/pool"
	"github.com/conneroisu/surfacepool/internal/types"
)

// memorySurface is the in-memory surface the CLI drives. It has no drawing
// backend; it only records the checkout context it was given.
type memorySurface struct {
	mu     sync.Mutex
	opts   pool.CheckoutOptions
	resets int
}

func newMemorySurface() (pool.Surface, error) {
	return &memorySurface{}, nil
}

func (s *memorySurface) Configure(opts pool.CheckoutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
	return nil
}

func (s *memorySurface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = pool.CheckoutOptions{}
	s.resets++
}

// errSimulatedFailure is returned by a consumer told to fail.
var errSimulatedFailure = errors.New("simulated consumer failure")

// viewConsumer keeps the visibility of every element it was told about.
type viewConsumer struct {
	mu      sync.Mutex
	surface *pool.Instance
	visible map[types.ElementKey]bool
	fail    bool
}

func newViewConsumer(fail bool) func(*pool.Instance) (*viewConsumer, error) {
	return func(inst *pool.Instance) (*viewConsumer, error) {
		return &viewConsumer{
			surface: inst,
			visible: make(map[types.ElementKey]bool),
			fail:    fail,
		}, nil
	}
}

func (c *viewConsumer) Update(elementType, name string, visible bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errSimulatedFailure
	}
	c.visible[types.Key(elementType, name)] = visible
	return nil
}

func (c *viewConsumer) hidden() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.visible {
		if !v {
			n++
		}
	}
	return n
}

// attachViewConsumer attaches one viewConsumer to a pooled surface.
func attachViewConsumer(c *di.Container, opts pool.CheckoutOptions, fail bool) (*di.Attachment, error) {
	return di.Attach(c, opts, newViewConsumer(fail), "cli_view")
}
