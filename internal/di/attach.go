package di

import (
	"context"
	"errors"

	"github.com/conneroisu/surfacepool/internal/pool"
	"github.com/conneroisu/surfacepool/internal/registry"
	"github.com/conneroisu/surfacepool/internal/types"
)

// Attachment is a consumer bound to a checked-out surface. It holds the only
// strong reference the container hands back: once the caller drops the
// attachment, the registry sees the consumer as stale.
type Attachment struct {
	Instance       *pool.Instance
	Consumer       registry.Consumer
	RegistrationID registry.RegistrationID
	ComponentType  string
	// Initial is the result of pushing current state to the new consumer.
	Initial types.DispatchResult
}

// Attach checks out a surface, builds a consumer around it and registers the
// consumer. The consumer then receives the current effective value of every
// known element, so it never starts from a stale view.
func Attach[T any, P registry.ConsumerPtr[T]](
	c *Container,
	opts pool.CheckoutOptions,
	newConsumer func(*pool.Instance) (P, error),
	componentType string,
) (*Attachment, error) {
	inst, err := c.Pool().Checkout(opts)
	if err != nil {
		return nil, err
	}

	consumer, err := newConsumer(inst)
	if err != nil {
		return nil, errors.Join(err, c.Pool().Checkin(inst))
	}

	id, err := registry.Register(c.Registry(), consumer, componentType)
	if err != nil {
		return nil, errors.Join(err, c.Pool().Checkin(inst))
	}

	attachment := &Attachment{
		Instance:       inst,
		Consumer:       consumer,
		RegistrationID: id,
		ComponentType:  componentType,
	}
	attachment.Initial = c.Registry().Sync(id)

	c.logger.Debug(context.Background(), "Consumer attached",
		"registration_id", uint64(id),
		"instance_id", inst.ID(),
		"overflow", inst.Overflow(),
		"component_type", componentType)

	return attachment, nil
}

// Detach unregisters the consumer and returns its surface to the pool.
// Detaching twice reports a double checkin.
func (c *Container) Detach(a *Attachment) error {
	if a == nil {
		return nil
	}

	c.Registry().Unregister(a.RegistrationID)
	return c.Pool().Checkin(a.Instance)
}

// Flag forwards to the registry.
func (c *Container) Flag(key types.ElementKey) bool {
	return c.Registry().Flag(key)
}

// ApplyVisibilityChange forwards to the registry.
func (c *Container) ApplyVisibilityChange(key types.ElementKey, value bool) types.DispatchResult {
	return c.Registry().ApplyVisibilityChange(key, value)
}
