package services

import (
	"context"
	"sync"
	"testing"

	"partyflow/internal/services/messenger"
	"partyflow/internal/services/payment"
	"partyflow/internal/store"
	"partyflow/models"

	"github.com/pocketbase/pocketbase/tests"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	require.NoError(t, store.EnsureCollections(app))
	return store.New(app)
}

func createEvent(t *testing.T, s *store.Store, name, date string, capacity int) *models.Event {
	t.Helper()

	event, err := s.CreateEvent(context.Background(), models.EventInput{
		Name:          name,
		Date:          date,
		Location:      "Haifa Port",
		Price:         decimal.NewFromInt(100),
		TotalCapacity: capacity,
	})
	require.NoError(t, err)
	return event
}

// MockMessenger is a mock implementation of messenger.Messenger
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) Send(ctx context.Context, recipient string, msg messenger.Message) error {
	args := m.Called(recipient, msg)
	return args.Error(0)
}

// MockCheckoutStarter is a mock implementation of CheckoutStarter
type MockCheckoutStarter struct {
	mock.Mock
}

func (m *MockCheckoutStarter) StartCheckout(ctx context.Context, req models.CheckoutRequest) (string, error) {
	args := m.Called(req)
	return args.String(0), args.Error(1)
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.TicketIssued
}

func (p *recordingPublisher) PublishTicketIssued(_ context.Context, evt models.TicketIssued) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) published() []models.TicketIssued {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.TicketIssued(nil), p.events...)
}

// MockGateway is a mock implementation of payment.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Provider() payment.Provider {
	return payment.Provider("mock")
}

func (m *MockGateway) CreateCheckout(ctx context.Context, in payment.CheckoutInput) (*models.CheckoutSession, error) {
	args := m.Called(in)
	s, _ := args.Get(0).(*models.CheckoutSession)
	return s, args.Error(1)
}

func (m *MockGateway) GetCheckout(ctx context.Context, ref string) (*models.CheckoutSession, error) {
	args := m.Called(ref)
	s, _ := args.Get(0).(*models.CheckoutSession)
	return s, args.Error(1)
}

func paidSession(ref string, req models.CheckoutRequest) *models.CheckoutSession {
	return &models.CheckoutSession{
		Ref:      ref,
		Status:   models.PaymentPaid,
		Amount:   decimal.NewFromInt(100),
		Currency: "ils",
		Metadata: req.Metadata(),
	}
}
