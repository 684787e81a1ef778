package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchCallsAllHandlersInOrder(t *testing.T) {
	b := New()
	var order []string

	b.Register(HandlerFunc{IDValue: "first", Fn: func(ctx context.Context, e Event) error {
		order = append(order, "first")
		return nil
	}})
	b.Register(HandlerFunc{IDValue: "second", Fn: func(ctx context.Context, e Event) error {
		order = append(order, "second")
		return nil
	}})

	errs := b.Dispatch(context.Background(), Event{Type: ReloadConfig})
	require.Empty(t, errs)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatchCollectsErrorsWithoutStopping(t *testing.T) {
	b := New()
	var calls atomic.Int32

	b.Register(HandlerFunc{IDValue: "failing", Fn: func(ctx context.Context, e Event) error {
		calls.Add(1)
		return errors.New("boom")
	}})
	b.Register(HandlerFunc{IDValue: "ok", Fn: func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	}})

	errs := b.Dispatch(context.Background(), Event{Type: SystemShutdown})
	require.Len(t, errs, 1)
	assert.EqualValues(t, 2, calls.Load())
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "ReloadConfig", ReloadConfig.String())
	assert.Equal(t, "SystemShutdown", SystemShutdown.String())
}
