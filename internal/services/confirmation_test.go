package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"partyflow/internal/services/payment"
	"partyflow/internal/status"
	"partyflow/internal/store"
	"partyflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type confirmFixture struct {
	store     *store.Store
	gateway   *MockGateway
	publisher *recordingPublisher
	svc       *ConfirmationService
}

func newConfirmFixture(t *testing.T) *confirmFixture {
	t.Helper()

	s := newTestStore(t)
	gw := new(MockGateway)
	pub := &recordingPublisher{}
	return &confirmFixture{
		store:     s,
		gateway:   gw,
		publisher: pub,
		svc:       NewConfirmationService(s, NewInventoryGuard(s), gw, pub),
	}
}

// An event with one seat: Alice's paid checkout gets the ticket and Bob's,
// confirmed afterwards, is refused as sold out.
func TestConfirm_SingleSeatScenario(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	event := createEvent(t, f.store, "Secret Show", "2026-10-15", 1)

	alice := models.CheckoutRequest{EventID: event.ID, OwnerID: "1", OwnerName: "Alice", Contact: "+972502345678"}
	bob := models.CheckoutRequest{EventID: event.ID, OwnerID: "2", OwnerName: "Bob", Contact: "+972502345679"}
	f.gateway.On("GetCheckout", "cs_alice").Return(paidSession("cs_alice", alice), nil)
	f.gateway.On("GetCheckout", "cs_bob").Return(paidSession("cs_bob", bob), nil)

	result, err := f.svc.Confirm(ctx, "cs_alice")
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, "Alice", result.Ticket.OwnerName)
	assert.Equal(t, "Secret Show", result.Event.Name)

	_, err = f.svc.Confirm(ctx, "cs_bob")
	assert.ErrorIs(t, err, status.ErrSoldOut)
	assert.ErrorIs(t, err, status.ErrCapacityConflict)

	count, err := f.store.CountTickets(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	open, err := f.store.ListOpenReconciliations(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "cs_bob", open[0].PaymentRef)
	assert.Equal(t, "2", open[0].OwnerID)
	assert.Equal(t, "100.00 ils", open[0].Amount)

	published := f.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, result.Ticket.ID, published[0].TicketID)
	assert.Equal(t, "1", published[0].OwnerID)
	assert.Equal(t, "Secret Show", published[0].EventName)
}

func TestConfirm_Idempotent(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	event := createEvent(t, f.store, "Rave", "2026-10-15", 5)

	req := models.CheckoutRequest{EventID: event.ID, OwnerID: "1", OwnerName: "Alice", Contact: "+972502345678"}
	f.gateway.On("GetCheckout", "cs_once").Return(paidSession("cs_once", req), nil).Once()

	first, err := f.svc.Confirm(ctx, "cs_once")
	require.NoError(t, err)

	second, err := f.svc.Confirm(ctx, "cs_once")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Ticket.ID, second.Ticket.ID)

	count, err := f.store.CountTickets(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, f.publisher.published(), 1)
	f.gateway.AssertNumberOfCalls(t, "GetCheckout", 1)
}

func TestConfirm_ParallelSameRef(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	event := createEvent(t, f.store, "Retry Storm", "2026-10-15", 5)

	req := models.CheckoutRequest{EventID: event.ID, OwnerID: "1", OwnerName: "Alice"}
	f.gateway.On("GetCheckout", "cs_dup").Return(paidSession("cs_dup", req), nil)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.svc.Confirm(ctx, "cs_dup")
			if assert.NoError(t, err) {
				ids[i] = result.Ticket.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	count, err := f.store.CountTickets(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, f.publisher.published(), 1)
}

func TestConfirm_ParallelNeverOversells(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	const capacity, buyers = 3, 9
	event := createEvent(t, f.store, "Limited", "2026-10-15", capacity)

	for i := 0; i < buyers; i++ {
		ref := fmt.Sprintf("cs_%d", i)
		req := models.CheckoutRequest{EventID: event.ID, OwnerID: fmt.Sprintf("%d", i), OwnerName: "Buyer"}
		f.gateway.On("GetCheckout", ref).Return(paidSession(ref, req), nil)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, soldOut := 0, 0
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Confirm(ctx, fmt.Sprintf("cs_%d", i))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, status.ErrSoldOut):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, ok)
	assert.Equal(t, buyers-capacity, soldOut)

	count, err := f.store.CountTickets(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, count)

	open, err := f.store.ListOpenReconciliations(ctx)
	require.NoError(t, err)
	assert.Len(t, open, buyers-capacity)
}

func TestConfirm_NotPaid(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()
	event := createEvent(t, f.store, "Pending", "2026-10-15", 5)

	session := paidSession("cs_open", models.CheckoutRequest{EventID: event.ID, OwnerID: "1"})
	session.Status = models.PaymentUnpaid
	f.gateway.On("GetCheckout", "cs_open").Return(session, nil)

	_, err := f.svc.Confirm(ctx, "cs_open")
	assert.ErrorIs(t, err, status.ErrPaymentNotComplete)

	count, err := f.store.CountTickets(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, f.publisher.published())
}

func TestConfirm_BadInput(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, "  ")
	assert.ErrorIs(t, err, status.ErrValidation)

	f.gateway.On("GetCheckout", "cs_nometa").Return(&models.CheckoutSession{
		Ref: "cs_nometa", Status: models.PaymentPaid, Metadata: map[string]string{},
	}, nil)
	_, err = f.svc.Confirm(ctx, "cs_nometa")
	assert.ErrorIs(t, err, status.ErrInvalidMetadata)

	f.gateway.On("GetCheckout", "cs_gone").Return(paidSession("cs_gone", models.CheckoutRequest{
		EventID: "deleted-event", OwnerID: "1",
	}), nil)
	_, err = f.svc.Confirm(ctx, "cs_gone")
	assert.ErrorIs(t, err, status.ErrEventNotFound)

	f.gateway.On("GetCheckout", "cs_down").Return(nil, fmt.Errorf("%w: timeout", status.ErrExternalService))
	_, err = f.svc.Confirm(ctx, "cs_down")
	assert.ErrorIs(t, err, status.ErrExternalService)
}

func TestConfirm_WithSandboxGateway(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	event := createEvent(t, s, "Sandbox Night", "2026-10-15", 2)

	sandbox := payment.NewSandboxGateway("http://localhost:8090")
	guard := NewInventoryGuard(s)
	checkout := NewCheckoutService(guard, sandbox, "http://localhost:8090", "ils")
	confirm := NewConfirmationService(s, guard, sandbox, nil)

	created, err := sandbox.CreateCheckout(ctx, payment.CheckoutInput{
		Metadata: models.CheckoutRequest{EventID: event.ID, OwnerID: "77", OwnerName: "Gal"}.Metadata(),
	})
	require.NoError(t, err)

	_, err = confirm.Confirm(ctx, created.Ref)
	assert.ErrorIs(t, err, status.ErrPaymentNotComplete)

	require.NoError(t, sandbox.MarkPaid(created.Ref))
	result, err := confirm.Confirm(ctx, created.Ref)
	require.NoError(t, err)
	assert.Equal(t, "77", result.Ticket.OwnerID)

	url, err := checkout.StartCheckout(ctx, models.CheckoutRequest{EventID: event.ID, OwnerID: "78"})
	require.NoError(t, err)
	assert.Contains(t, url, "/dev/checkout?ref=")
}

// Unknown refs on the public confirmation page are the caller's mistake and
// must not trip the breaker shared with real checkouts.
func TestConfirm_UnknownRefsKeepCheckoutAvailable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	event := createEvent(t, s, "Warehouse Rave", "2026-10-15", 10)

	gw := payment.NewGuardedGateway(payment.NewSandboxGateway("http://localhost:8090"), payment.GuardSettings{
		MaxRequests:  5,
		FailureRatio: 0.5,
	})
	guard := NewInventoryGuard(s)
	checkout := NewCheckoutService(guard, gw, "http://localhost:8090", "ils")
	confirm := NewConfirmationService(s, guard, gw, nil)

	for i := 0; i < 20; i++ {
		_, err := confirm.Confirm(ctx, fmt.Sprintf("cs_bogus_%d", i))
		require.ErrorIs(t, err, status.ErrCheckoutNotFound)
		assert.NotErrorIs(t, err, status.ErrExternalService)
	}

	url, err := checkout.StartCheckout(ctx, models.CheckoutRequest{EventID: event.ID, OwnerID: "5", OwnerName: "Dana"})
	require.NoError(t, err)
	assert.Contains(t, url, "/dev/checkout?ref=")
}
