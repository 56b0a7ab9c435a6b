package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"partyflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketEventBus_InProcessRoundTrip(t *testing.T) {
	bus, err := NewTicketEventBus(nil, slog.Default())
	require.NoError(t, err)

	received := make(chan *models.TicketIssued, 1)
	require.NoError(t, bus.OnTicketIssued("test.notify", func(ctx context.Context, evt *models.TicketIssued) error {
		received <- evt
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bus.Run(ctx) }()
	defer bus.Close()

	select {
	case <-bus.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	require.NoError(t, bus.PublishTicketIssued(ctx, models.TicketIssued{
		TicketID:  "t1",
		EventID:   "e1",
		EventName: "Beach Party",
		OwnerID:   "42",
	}))

	select {
	case evt := <-received:
		assert.Equal(t, "t1", evt.TicketID)
		assert.Equal(t, "42", evt.OwnerID)
		assert.Equal(t, "Beach Party", evt.EventName)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestTicketEventBus_HandlerErrorIsNotRedelivered(t *testing.T) {
	bus, err := NewTicketEventBus(nil, slog.Default())
	require.NoError(t, err)

	calls := make(chan struct{}, 4)
	require.NoError(t, bus.OnTicketIssued("test.failing", func(ctx context.Context, evt *models.TicketIssued) error {
		calls <- struct{}{}
		return assert.AnError
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bus.Run(ctx) }()
	defer bus.Close()
	<-bus.Running()

	require.NoError(t, bus.PublishTicketIssued(ctx, models.TicketIssued{TicketID: "t2"}))

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}

	select {
	case <-calls:
		t.Fatal("failed message was redelivered")
	case <-time.After(200 * time.Millisecond):
	}
}
