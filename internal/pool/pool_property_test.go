//go:build property
// +build property

package pool

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPoolProperties checks pool balance over random checkout/checkin sequences.
func TestPoolProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: idle + checked out never exceeds capacity
	properties.Property("pool balance", prop.ForAll(
		func(capacity int, ops []int) bool {
			p := New(func() (Surface, error) { return &fakeSurface{}, nil }, WithCapacity(capacity))

			var held []*Instance
			for _, op := range ops {
				if op%3 != 0 || len(held) == 0 {
					inst, err := p.Checkout(CheckoutOptions{})
					if err != nil {
						return false
					}
					held = append(held, inst)
				} else {
					idx := op % len(held)
					if err := p.Checkin(held[idx]); err != nil {
						return false
					}
					held = append(held[:idx], held[idx+1:]...)
				}

				stats := p.Stats()
				if stats.Idle+stats.CheckedOut > stats.Capacity {
					return false
				}
				if stats.CheckedOut+stats.Overflow != len(held) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 8),
		gen.SliceOfN(64, gen.IntRange(0, 1000)),
	))

	// Property: a second checkin of the same instance never changes the pool
	properties.Property("no double release", prop.ForAll(
		func(capacity int, checkouts int) bool {
			p := New(func() (Surface, error) { return &fakeSurface{}, nil }, WithCapacity(capacity))

			var held []*Instance
			for i := 0; i < checkouts; i++ {
				inst, err := p.Checkout(CheckoutOptions{})
				if err != nil {
					return false
				}
				held = append(held, inst)
			}

			for _, inst := range held {
				if err := p.Checkin(inst); err != nil {
					return false
				}
				before := p.Stats()
				if err := p.Checkin(inst); err == nil {
					return false
				}
				after := p.Stats()
				if before.Idle != after.Idle || before.CheckedOut != after.CheckedOut || before.Overflow != after.Overflow {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 6),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
