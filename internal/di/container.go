// Package di wires the surface pool, the visibility engine and the consumer
// registry into one context object that callers pass around explicitly.
//
// Services are registered by name and created lazily as singletons. The
// container detects circular service dependencies and creates each singleton
// exactly once under concurrent access.
package di

import (
	"context"
	"fmt"
	"sync"

	"github.com/conneroisu/surfacepool/internal/config"
	surfaceerrors "github.com/conneroisu/surfacepool/internal/errors"
	"github.com/conneroisu/surfacepool/internal/logging"
	"github.com/conneroisu/surfacepool/internal/pool"
	"github.com/conneroisu/surfacepool/internal/registry"
	"github.com/conneroisu/surfacepool/internal/visibility"
)

// Core service names.
const (
	ServiceEngine   = "engine"
	ServicePool     = "pool"
	ServiceRegistry = "registry"
)

// FactoryFunc creates a service instance using the dependency resolver
type FactoryFunc func(resolver DependencyResolver) (interface{}, error)

// DependencyResolver provides safe dependency resolution that prevents circular dependencies
type DependencyResolver interface {
	Get(name string) (interface{}, error)
}

// ServiceDefinition defines how a service should be created
type ServiceDefinition struct {
	Name         string
	Factory      FactoryFunc
	Dependencies []string
}

// dependencyResolver carries the set of services being resolved on one call path
type dependencyResolver struct {
	container *Container
	resolving map[string]bool
}

func (dr *dependencyResolver) Get(name string) (interface{}, error) {
	return dr.container.getWithResolver(name, dr.resolving)
}

// Container is the explicit context object owning one pool, one engine and
// one registry. It is safe for concurrent use.
type Container struct {
	services    map[string]ServiceDefinition
	singletons  map[string]interface{}
	creating    map[string]*sync.WaitGroup
	mu          sync.RWMutex
	config      *config.Config
	factory     pool.Factory
	logger      logging.Logger
	initialized bool
}

// NewContainer creates a container. A nil cfg uses config.Default and a nil
// logger discards output.
func NewContainer(cfg *config.Config, factory pool.Factory, logger logging.Logger) *Container {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Container{
		services:   make(map[string]ServiceDefinition),
		singletons: make(map[string]interface{}),
		creating:   make(map[string]*sync.WaitGroup),
		config:     cfg,
		factory:    factory,
		logger:     logger.WithComponent("container"),
	}
}

// Register registers a singleton service with the container
func (c *Container) Register(name string, factory FactoryFunc, dependencies ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.services[name] = ServiceDefinition{
		Name:         name,
		Factory:      factory,
		Dependencies: dependencies,
	}
}

// Get retrieves a service from the container
func (c *Container) Get(name string) (interface{}, error) {
	return c.getWithResolver(name, make(map[string]bool))
}

// getWithResolver retrieves a service with circular dependency detection
func (c *Container) getWithResolver(name string, resolving map[string]bool) (interface{}, error) {
	if resolving[name] {
		return nil, surfaceerrors.NewInternalError(surfaceerrors.ErrCodeInternalError,
			"circular dependency detected for service", nil).
			WithComponent("di").
			WithContext("service", name)
	}

	c.mu.Lock()
	if instance, exists := c.singletons[name]; exists {
		c.mu.Unlock()
		return instance, nil
	}

	definition, exists := c.services[name]
	if !exists {
		c.mu.Unlock()
		return nil, surfaceerrors.NewInternalError(surfaceerrors.ErrCodeInternalError,
			"service not registered", nil).
			WithComponent("di").
			WithContext("service", name)
	}

	// Another goroutine is creating this singleton; wait for it.
	if wg, creating := c.creating[name]; creating {
		c.mu.Unlock()
		wg.Wait()

		c.mu.RLock()
		instance, ok := c.singletons[name]
		c.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("service '%s' failed to initialize", name)
		}
		return instance, nil
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	c.creating[name] = wg
	c.mu.Unlock()

	resolving[name] = true
	instance, err := c.create(definition, resolving)
	delete(resolving, name)

	c.mu.Lock()
	delete(c.creating, name)
	if err == nil {
		c.singletons[name] = instance
	}
	c.mu.Unlock()
	wg.Done()

	if err != nil {
		return nil, fmt.Errorf("failed to create service '%s': %w", name, err)
	}

	return instance, nil
}

func (c *Container) create(definition ServiceDefinition, resolving map[string]bool) (interface{}, error) {
	if definition.Factory == nil {
		return nil, surfaceerrors.NewInternalError(surfaceerrors.ErrCodeInternalError,
			"service factory is nil", nil).
			WithComponent("di").
			WithContext("service", definition.Name)
	}

	return definition.Factory(&dependencyResolver{container: c, resolving: resolving})
}

// Has checks if a service is registered
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.services[name]
	return exists
}

// Initialize registers and creates the engine, the pool and the registry.
// When the configuration asks for it the pool is pre-filled here. Calling
// Initialize again is a no-op.
func (c *Container) Initialize() error {
	c.mu.RLock()
	initialized := c.initialized
	c.mu.RUnlock()
	if initialized {
		return nil
	}

	if c.factory == nil {
		return surfaceerrors.NewConfigError(surfaceerrors.ErrCodeConfigInvalid, "surface factory is required", nil).
			WithComponent("container")
	}

	c.registerCoreServices()

	for _, name := range []string{ServiceEngine, ServicePool, ServiceRegistry} {
		if _, err := c.Get(name); err != nil {
			return err
		}
	}

	if c.config.Pool.Prefill {
		c.Pool().Initialize(c.config.Pool.Capacity)
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	c.logger.Info(context.Background(), "Container initialized",
		"capacity", c.config.Pool.Capacity,
		"prefill", c.config.Pool.Prefill,
		"rules", len(c.Engine().Rules()))

	return nil
}

// registerCoreServices registers the engine, the pool and the registry
func (c *Container) registerCoreServices() {
	c.Register(ServiceEngine, func(DependencyResolver) (interface{}, error) {
		rules, err := c.config.Visibility.DependencyRules()
		if err != nil {
			return nil, err
		}
		defaults, err := c.config.Visibility.InitialFlags()
		if err != nil {
			return nil, err
		}
		return visibility.NewEngine(rules,
			visibility.WithDefaults(defaults),
			visibility.WithLogger(c.logger))
	})

	c.Register(ServicePool, func(DependencyResolver) (interface{}, error) {
		return pool.New(c.factory,
			pool.WithCapacity(c.config.Pool.Capacity),
			pool.WithLogger(c.logger)), nil
	})

	c.Register(ServiceRegistry, func(resolver DependencyResolver) (interface{}, error) {
		engine, err := resolver.Get(ServiceEngine)
		if err != nil {
			return nil, err
		}
		return registry.New(engine.(*visibility.Engine), registry.WithLogger(c.logger)), nil
	}, ServiceEngine)
}

// Pool returns the surface pool. Initialize must have succeeded.
func (c *Container) Pool() *pool.ResourcePool {
	return c.mustGet(ServicePool).(*pool.ResourcePool)
}

// Engine returns the visibility engine. Initialize must have succeeded.
func (c *Container) Engine() *visibility.Engine {
	return c.mustGet(ServiceEngine).(*visibility.Engine)
}

// Registry returns the consumer registry. Initialize must have succeeded.
func (c *Container) Registry() *registry.Registry {
	return c.mustGet(ServiceRegistry).(*registry.Registry)
}

// Config returns the configuration the container was built with.
func (c *Container) Config() *config.Config {
	return c.config
}

func (c *Container) mustGet(name string) interface{} {
	c.mu.RLock()
	instance, exists := c.singletons[name]
	c.mu.RUnlock()
	if !exists {
		panic(fmt.Sprintf("service '%s' is not available: call Initialize first", name))
	}
	return instance
}

// Shutdown tears down the pool. Registered consumers are not notified. The
// container cannot be used afterwards.
func (c *Container) Shutdown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.singletons[ServicePool].(*pool.ResourcePool); ok {
		p.Teardown()
	}
	if r, ok := c.singletons[ServiceRegistry].(*registry.Registry); ok {
		stats := r.Stats()
		c.logger.Info(ctx, "Container shut down",
			"registered", stats.Registered,
			"broadcasts", stats.Broadcasts,
			"delivered", stats.Delivered,
			"failed", stats.Failed)
	}

	c.singletons = make(map[string]interface{})
	c.initialized = false

	return nil
}
