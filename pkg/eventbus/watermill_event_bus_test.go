package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseflow-io/caseflow/pkg/channels/gochannel"
	"github.com/caseflow-io/caseflow/pkg/events"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *events.InstanceCreated, 1)

	err := bus.Handle(events.InstanceCreatedEvent, func(_ context.Context, event interface{}) error {
		created, ok := event.(*events.InstanceCreated)
		require.True(t, ok)

		received <- created

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = bus.Subscribe(ctx)
	require.NoError(t, err)

	sent := events.InstanceCreated{
		BaseEvent:    events.NewBaseEvent(events.InstanceCreatedEvent, "inst-1"),
		TemplateID:   "tmpl-1",
		InstanceCode: "PROC-2026-0001",
		InitiatedBy:  "hr-1",
	}

	err = bus.Publish(ctx, "inst-1", sent)
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "inst-1", got.InstanceID)
		assert.Equal(t, "PROC-2026-0001", got.InstanceCode)
		assert.Equal(t, events.InstanceCreatedEvent, got.GetType())
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypeIsAcked(t *testing.T) {
	bus := newTestBus(t)

	stepEvents := make(chan *events.StepStarted, 2)

	err := bus.Handle(events.StepStartedEvent, func(_ context.Context, event interface{}) error {
		stepEvents <- event.(*events.StepStarted)

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler is registered for this type; it must not wedge the stream.
	err = bus.Publish(ctx, "inst-1", events.InstanceCompleted{
		BaseEvent: events.NewBaseEvent(events.InstanceCompletedEvent, "inst-1"),
	})
	require.NoError(t, err)

	err = bus.Publish(ctx, "inst-1", events.StepStarted{
		BaseEvent:  events.NewBaseEvent(events.StepStartedEvent, "inst-1"),
		StepNumber: 2,
	})
	require.NoError(t, err)

	select {
	case got := <-stepEvents:
		assert.Equal(t, 2, got.StepNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
