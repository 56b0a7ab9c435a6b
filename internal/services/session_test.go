package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"partyflow/internal/services/sessionstore"
	"partyflow/internal/status"
	"partyflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager(ttl time.Duration) (*SessionManager, *sessionstore.Memory, *MockCheckoutStarter) {
	store := sessionstore.NewMemory()
	checkout := new(MockCheckoutStarter)
	return NewSessionManager(store, checkout, "IL", ttl), store, checkout
}

func TestSessionManager_HappyPath(t *testing.T) {
	m, store, checkout := newTestSessionManager(0)
	ctx := context.Background()

	checkout.On("StartCheckout", models.CheckoutRequest{
		EventID:   "evt1",
		OwnerID:   "42",
		OwnerName: "Alice",
		Contact:   "+972502345678",
	}).Return("https://pay.example/cs_1", nil).Once()

	reply, err := m.Begin(ctx, "chat-42", "42", "evt1")
	require.NoError(t, err)
	assert.Equal(t, models.StageAwaitingName, reply.Stage)
	assert.Equal(t, PromptName, reply.Text)

	reply, err = m.SubmitName(ctx, "chat-42", "  Alice ")
	require.NoError(t, err)
	assert.Equal(t, models.StageAwaitingPhone, reply.Stage)
	assert.Contains(t, reply.Text, "Alice")

	reply, err = m.SubmitPhone(ctx, "chat-42", "050-234-5678")
	require.NoError(t, err)
	assert.Equal(t, models.StageIdle, reply.Stage)
	assert.Equal(t, "https://pay.example/cs_1", reply.CheckoutURL)

	assert.Equal(t, 0, store.Len())
	checkout.AssertNumberOfCalls(t, "StartCheckout", 1)
}

func TestSessionManager_InvalidPhoneLoops(t *testing.T) {
	m, _, checkout := newTestSessionManager(0)
	ctx := context.Background()
	checkout.On("StartCheckout", mock.Anything).Return("https://pay.example/cs_2", nil)

	_, err := m.Begin(ctx, "chat-7", "7", "evt1")
	require.NoError(t, err)
	_, err = m.Handle(ctx, "chat-7", "Bob")
	require.NoError(t, err)

	for _, bad := range []string{"hello", "123", "+1 555", ""} {
		reply, err := m.Handle(ctx, "chat-7", bad)
		assert.ErrorIs(t, err, status.ErrValidation, bad)
		assert.Equal(t, models.StageAwaitingPhone, reply.Stage)
		assert.Equal(t, PromptInvalidPhone, reply.Text)
	}
	checkout.AssertNotCalled(t, "StartCheckout", mock.Anything)

	current, err := m.Current(ctx, "chat-7")
	require.NoError(t, err)
	assert.Equal(t, models.StageAwaitingPhone, current.Stage)

	reply, err := m.Handle(ctx, "chat-7", "+972 50 234 5678")
	require.NoError(t, err)
	assert.Equal(t, models.StageIdle, reply.Stage)
	checkout.AssertNumberOfCalls(t, "StartCheckout", 1)
}

func TestSessionManager_EmptyNameRejected(t *testing.T) {
	m, _, _ := newTestSessionManager(0)
	ctx := context.Background()

	_, err := m.Begin(ctx, "chat-1", "1", "evt1")
	require.NoError(t, err)

	reply, err := m.SubmitName(ctx, "chat-1", "   ")
	assert.ErrorIs(t, err, status.ErrValidation)
	assert.Equal(t, models.StageAwaitingName, reply.Stage)
}

func TestSessionManager_NoSessionExpired(t *testing.T) {
	m, _, checkout := newTestSessionManager(0)
	ctx := context.Background()

	reply, err := m.SubmitPhone(ctx, "ghost", "050-234-5678")
	assert.ErrorIs(t, err, status.ErrSessionExpired)
	assert.Equal(t, PromptExpired, reply.Text)

	_, err = m.SubmitName(ctx, "ghost", "Alice")
	assert.ErrorIs(t, err, status.ErrSessionExpired)

	_, err = m.Handle(ctx, "ghost", "anything")
	assert.ErrorIs(t, err, status.ErrSessionExpired)

	checkout.AssertNotCalled(t, "StartCheckout", mock.Anything)
}

func TestSessionManager_WrongStep(t *testing.T) {
	m, _, _ := newTestSessionManager(0)
	ctx := context.Background()

	_, err := m.Begin(ctx, "chat-3", "3", "evt1")
	require.NoError(t, err)

	reply, err := m.SubmitPhone(ctx, "chat-3", "050-234-5678")
	assert.ErrorIs(t, err, status.ErrValidation)
	assert.Equal(t, models.StageAwaitingName, reply.Stage)
}

func TestSessionManager_BeginReplacesSession(t *testing.T) {
	m, _, checkout := newTestSessionManager(0)
	ctx := context.Background()
	checkout.On("StartCheckout", mock.MatchedBy(func(req models.CheckoutRequest) bool {
		return req.EventID == "evt2"
	})).Return("https://pay.example/cs_3", nil)

	_, err := m.Begin(ctx, "chat-5", "5", "evt1")
	require.NoError(t, err)
	_, err = m.SubmitName(ctx, "chat-5", "Carol")
	require.NoError(t, err)

	reply, err := m.Begin(ctx, "chat-5", "5", "evt2")
	require.NoError(t, err)
	assert.Equal(t, models.StageAwaitingName, reply.Stage)

	_, err = m.SubmitName(ctx, "chat-5", "Carol")
	require.NoError(t, err)
	_, err = m.SubmitPhone(ctx, "chat-5", "0502345678")
	require.NoError(t, err)

	checkout.AssertExpectations(t)
}

func TestSessionManager_Cancel(t *testing.T) {
	m, store, _ := newTestSessionManager(0)
	ctx := context.Background()

	_, err := m.Begin(ctx, "chat-8", "8", "evt1")
	require.NoError(t, err)

	reply, err := m.Cancel(ctx, "chat-8")
	require.NoError(t, err)
	assert.Equal(t, models.StageIdle, reply.Stage)
	assert.Equal(t, 0, store.Len())

	_, err = m.Cancel(ctx, "chat-8")
	assert.NoError(t, err)
}

func TestSessionManager_TTL(t *testing.T) {
	m, store, _ := newTestSessionManager(10 * time.Minute)
	ctx := context.Background()

	now := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, err := m.Begin(ctx, "chat-9", "9", "evt1")
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	_, err = m.SubmitName(ctx, "chat-9", "Dana")
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	_, err = m.SubmitPhone(ctx, "chat-9", "050-234-5678")
	assert.ErrorIs(t, err, status.ErrSessionExpired)
	assert.Equal(t, 0, store.Len())
}

func TestSessionManager_CheckoutFailureEndsSession(t *testing.T) {
	m, store, checkout := newTestSessionManager(0)
	ctx := context.Background()
	checkout.On("StartCheckout", mock.Anything).Return("", status.ErrSoldOut)

	_, err := m.Begin(ctx, "chat-4", "4", "evt1")
	require.NoError(t, err)
	_, err = m.SubmitName(ctx, "chat-4", "Eve")
	require.NoError(t, err)

	reply, err := m.SubmitPhone(ctx, "chat-4", "050-234-5678")
	assert.ErrorIs(t, err, status.ErrSoldOut)
	assert.Contains(t, reply.Text, "sold out")
	assert.Equal(t, 0, store.Len())
}

type failingSessionStore struct {
	sessionstore.Store
}

func (failingSessionStore) Put(context.Context, *models.ConversationSession) error {
	return errors.New("redis down")
}

func TestSessionManager_StoreFailure(t *testing.T) {
	m := NewSessionManager(failingSessionStore{Store: sessionstore.NewMemory()}, new(MockCheckoutStarter), "IL", 0)

	_, err := m.Begin(context.Background(), "chat-x", "x", "evt1")

	assert.ErrorIs(t, err, status.ErrPersistence)
}

type undeletableSessionStore struct {
	sessionstore.Store
}

func (undeletableSessionStore) Delete(context.Context, string) error {
	return errors.New("redis down")
}

func TestSessionManager_StaleSessionDeleteFailureLogged(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	mem := sessionstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, &models.ConversationSession{Key: "chat-9", Stage: models.StageIdle, UpdatedAt: time.Now()}))
	m := NewSessionManager(undeletableSessionStore{Store: mem}, new(MockCheckoutStarter), "IL", 0)

	_, err := m.Handle(ctx, "chat-9", "hello")

	assert.ErrorIs(t, err, status.ErrSessionExpired)
	assert.Contains(t, logs.String(), "Failed to drop stale session")
	assert.Contains(t, logs.String(), "redis down")
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		region  string
		want    string
		wantErr bool
	}{
		{"050-234-5678", "IL", "+972502345678", false},
		{"+972 50 234 5678", "IL", "+972502345678", false},
		{"(650) 253-0000", "US", "+16502530000", false},
		{"not a phone", "IL", "", true},
		{"12", "IL", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizePhone(tc.in, tc.region)
			if tc.wantErr {
				assert.ErrorIs(t, err, status.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
