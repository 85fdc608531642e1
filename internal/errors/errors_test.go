package errors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurfaceErrorError(t *testing.T) {
	cause := errors.New("gpu context lost")
	err := NewConstructionError("failed to build surface", cause).WithComponent("pool")

	msg := err.Error()
	assert.Contains(t, msg, "[ERR_CONSTRUCTION]")
	assert.Contains(t, msg, "component:pool")
	assert.Contains(t, msg, "failed to build surface")
	assert.Contains(t, msg, "gpu context lost")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestSurfaceErrorIs(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		target   error
		expected bool
	}{
		{
			name:     "double checkin matches sentinel",
			err:      NewPoolError(ErrCodeDoubleCheckin, "instance 3 is not checked out"),
			target:   ErrDoubleCheckin,
			expected: true,
		},
		{
			name:     "wrapped stale consumer matches sentinel",
			err:      fmt.Errorf("dispatch: %w", NewDispatchError(ErrCodeStaleConsumer, "gone", nil)),
			target:   ErrStaleConsumer,
			expected: true,
		},
		{
			name:     "different code does not match",
			err:      NewDispatchError(ErrCodeConsumerUpdate, "boom", nil),
			target:   ErrStaleConsumer,
			expected: false,
		},
		{
			name:     "plain error does not match",
			err:      errors.New("plain"),
			target:   ErrConstruction,
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, errors.Is(tc.err, tc.target))
		})
	}
}

func TestSurfaceErrorWithContext(t *testing.T) {
	err := NewPoolError(ErrCodeDoubleCheckin, "not checked out").
		WithContext("instance_id", uint64(7))

	assert.Equal(t, uint64(7), err.Context["instance_id"])

	fields := err.Fields()
	require.Len(t, fields, 6)
	assert.Equal(t, "error_type", fields[0])
	assert.Equal(t, "pool", fields[1])
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(NewDispatchError(ErrCodeConsumerUpdate, "x", nil)))
	assert.False(t, IsRecoverable(NewConfigError(ErrCodeRuleCycle, "cycle", nil)))
	assert.False(t, IsRecoverable(errors.New("plain")))
	assert.True(t, IsRecoverable(fmt.Errorf("wrapped: %w", NewPoolError(ErrCodeDoubleCheckin, "x"))))
	assert.False(t, IsRecoverable(NewInternalError(ErrCodeInternalError, "x", nil)))
}

func TestFromPanic(t *testing.T) {
	assert.NoError(t, FromPanic(nil))

	cause := errors.New("nil map write")
	err := FromPanic(cause)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	err = FromPanic("index out of range")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index out of range")
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	handler := NewErrorHandler(logger)
	ctx := context.Background()

	handler.Handle(ctx, nil)
	handler.Handle(ctx, NewPoolError(ErrCodeDoubleCheckin, "double"))
	handler.Handle(ctx, NewDispatchError(ErrCodeConsumerUpdate, "update failed", nil))
	handler.Handle(ctx, NewConfigError(ErrCodeRuleCycle, "cycle", nil))
	handler.Handle(ctx, errors.New("plain"))

	assert.Equal(t, 2, logger.warns)
	assert.Equal(t, 2, logger.errors)
}

func TestErrorCollector(t *testing.T) {
	collector := NewErrorCollector()
	assert.False(t, collector.HasErrors())
	assert.NoError(t, collector.Err())

	collector.AddError(nil)
	assert.Equal(t, 0, collector.Count())

	first := errors.New("first")
	second := NewValidationError(ErrCodeInvalidElement, "second")
	collector.AddError(first)
	collector.AddError(second)

	assert.True(t, collector.HasErrors())
	assert.Equal(t, 2, collector.Count())

	joined := collector.Err()
	assert.ErrorIs(t, joined, first)
	assert.ErrorIs(t, joined, ErrInvalidElement)
}

func TestErrorCollectorConcurrentAdd(t *testing.T) {
	collector := NewErrorCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			collector.AddError(fmt.Errorf("error %d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, collector.Count())
}

type recordingLogger struct {
	mu     sync.Mutex
	warns  int
	errors int
}

func (l *recordingLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns++
}

func (l *recordingLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors++
}
