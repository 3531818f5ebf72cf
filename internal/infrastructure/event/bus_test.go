package event

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)

	event := newTestEvent("TestEvent", uuid.New())
	require.NoError(t, bus.Publish(context.Background(), event))

	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, event, handler.getHandled()[0])
}

func TestInMemoryEventBus_Publish_MultipleEventsAndHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h1 := newTestHandler("TestEvent")
	h2 := newTestHandler("TestEvent")
	bus.Subscribe(h1)
	bus.Subscribe(h2)

	err := bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New()), newTestEvent("TestEvent", uuid.New()))

	require.NoError(t, err)
	assert.Len(t, h1.getHandled(), 2)
	assert.Len(t, h2.getHandled(), 2)
}

func TestInMemoryEventBus_Publish_WildcardHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	wildcard := newTestHandler()
	bus.Subscribe(wildcard)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("AnyEventType", uuid.New())))
	assert.Len(t, wildcard.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_HandlerErrorIsReturned(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := newTestHandler("TestEvent")
	failing.setError(errors.New("journal unavailable"))
	healthy := newTestHandler("TestEvent")
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal unavailable")
	assert.Len(t, healthy.getHandled(), 1, "later handlers still run")
}

type panickingHandler struct{}

func (panickingHandler) Handle(context.Context, shared.DomainEvent) error { panic("boom") }
func (panickingHandler) EventTypes() []string                           { return []string{"TestEvent"} }

func TestInMemoryEventBus_Publish_RecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(panickingHandler{})
	after := newTestHandler("TestEvent")
	bus.Subscribe(after)

	err := bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Len(t, after.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_NoMatchingHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("OtherEvent")
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New())))
	assert.Empty(t, handler.getHandled())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)

	_ = bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New()))
	bus.Unsubscribe(handler)
	_ = bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New()))

	assert.Len(t, handler.getHandled(), 1)
}

func TestInMemoryEventBus_SubscribeExplicitTypesOverrideHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler, "DocumentPosted")

	_ = bus.Publish(context.Background(), newTestEvent("TestEvent", uuid.New()))
	_ = bus.Publish(context.Background(), newTestEvent("DocumentPosted", uuid.New()))

	require.Len(t, handler.getHandled(), 1)
	assert.Equal(t, "DocumentPosted", handler.getHandled()[0].EventType())
}
