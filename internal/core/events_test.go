package core

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestEventBus_DeliveryOrder(t *testing.T) {
	t.Parallel()

	bus := newEventBus(hclog.NewNullLogger())

	var got []string
	bus.subscribe(func(Event) { got = append(got, "first") })
	bus.subscribe(func(Event) { panic("second is broken") })
	bus.subscribe(func(Event) { got = append(got, "third") })

	bus.publish(ServerStarted{})
	require.Equal(t, []string{"first", "third"}, got)
}

func TestEventBus_UnsubscribeDuringPublish(t *testing.T) {
	t.Parallel()

	bus := newEventBus(hclog.NewNullLogger())

	calls := 0
	var unsubscribe func()
	unsubscribe = bus.subscribe(func(Event) {
		calls++
		unsubscribe()
	})

	bus.publish(ServerStarted{})
	bus.publish(ServerStopped{})
	require.Equal(t, 1, calls)
}

func TestEvent_Types(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event Event
		want  EventType
	}{
		{event: ServerStarted{}, want: "server:started"},
		{event: ServerStopped{}, want: "server:stopped"},
		{event: StateChanged{}, want: "server:state_changed"},
		{event: ServerError{}, want: "server:error"},
		{event: HandlerRegistered{}, want: "handler:registered"},
		{event: HandlerInvoked{}, want: "handler:invoked"},
		{event: HandlerError{}, want: "handler:error"},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, tc.event.Type())
	}
}
