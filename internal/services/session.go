package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"partyflow/internal/services/sessionstore"
	"partyflow/internal/status"
	"partyflow/models"
	"partyflow/utils"

	"github.com/nyaruka/phonenumbers"
)

const (
	PromptName          = "Great choice! What name should appear on the ticket?"
	PromptPhone         = "Thanks, %s. What's your phone number?"
	PromptInvalidName   = "Please send the name that should appear on the ticket."
	PromptInvalidPhone  = "That doesn't look like a valid phone number. Please try again."
	PromptExpired       = "Your session has expired. Use /events to pick a party again."
	PromptCheckout      = "Almost done! Complete your payment here:\n%s"
	PromptCheckoutError = "We couldn't start your payment right now. Use /events to try again."
	PromptCancelled     = "Purchase cancelled."
)

// CheckoutStarter turns a completed conversation into a gateway checkout.
type CheckoutStarter interface {
	StartCheckout(ctx context.Context, req models.CheckoutRequest) (string, error)
}

// Reply is what the chat front end sends back to the buyer.
type Reply struct {
	Text        string
	Stage       models.Stage
	CheckoutURL string
}

type SessionManager struct {
	store    sessionstore.Store
	checkout CheckoutStarter
	locks    *utils.KeyedMutex
	region   string
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionManager returns a manager validating phones for region. A
// positive ttl expires sessions that saw no message for that long.
func NewSessionManager(store sessionstore.Store, checkout CheckoutStarter, region string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		store:    store,
		checkout: checkout,
		locks:    utils.NewKeyedMutex(),
		region:   region,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Begin starts a purchase for eventID, replacing any session the buyer had.
func (m *SessionManager) Begin(ctx context.Context, key, ownerID, eventID string) (Reply, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	s := &models.ConversationSession{
		Key:       key,
		EventID:   eventID,
		OwnerID:   ownerID,
		Stage:     models.StageAwaitingName,
		UpdatedAt: m.now(),
	}
	if err := m.store.Put(ctx, s); err != nil {
		return Reply{}, fmt.Errorf("%w: %w", status.ErrPersistence, err)
	}
	return Reply{Text: PromptName, Stage: s.Stage}, nil
}

func (m *SessionManager) SubmitName(ctx context.Context, key, text string) (Reply, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	s, err := m.load(ctx, key)
	if err != nil {
		return expiredReply(err)
	}
	if s.Stage != models.StageAwaitingName {
		return Reply{Text: stagePrompt(s), Stage: s.Stage}, fmt.Errorf("%w: not expecting a name", status.ErrValidation)
	}
	return m.submitName(ctx, s, text)
}

func (m *SessionManager) SubmitPhone(ctx context.Context, key, text string) (Reply, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	s, err := m.load(ctx, key)
	if err != nil {
		return expiredReply(err)
	}
	if s.Stage != models.StageAwaitingPhone {
		return Reply{Text: stagePrompt(s), Stage: s.Stage}, fmt.Errorf("%w: not expecting a phone number", status.ErrValidation)
	}
	return m.submitPhone(ctx, s, text)
}

// Handle routes free text to the step matching the buyer's current stage.
func (m *SessionManager) Handle(ctx context.Context, key, text string) (Reply, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	s, err := m.load(ctx, key)
	if err != nil {
		return expiredReply(err)
	}

	switch s.Stage {
	case models.StageAwaitingName:
		return m.submitName(ctx, s, text)
	case models.StageAwaitingPhone:
		return m.submitPhone(ctx, s, text)
	default:
		if err := m.store.Delete(ctx, key); err != nil {
			slog.Error("Failed to drop stale session", "key", key, "stage", s.Stage, "error", err)
		}
		return expiredReply(status.ErrSessionExpired)
	}
}

// Cancel drops the buyer's session. Cancelling without one is not an error.
func (m *SessionManager) Cancel(ctx context.Context, key string) (Reply, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	if err := m.store.Delete(ctx, key); err != nil {
		return Reply{}, fmt.Errorf("%w: %w", status.ErrPersistence, err)
	}
	return Reply{Text: PromptCancelled, Stage: models.StageIdle}, nil
}

// Current returns the buyer's live session.
func (m *SessionManager) Current(ctx context.Context, key string) (*models.ConversationSession, error) {
	unlock := m.locks.Lock(key)
	defer unlock()

	return m.load(ctx, key)
}

func (m *SessionManager) submitName(ctx context.Context, s *models.ConversationSession, text string) (Reply, error) {
	name := strings.TrimSpace(text)
	if name == "" {
		return Reply{Text: PromptInvalidName, Stage: s.Stage}, fmt.Errorf("%w: empty name", status.ErrValidation)
	}

	s.Name = name
	s.Stage = models.StageAwaitingPhone
	s.UpdatedAt = m.now()
	if err := m.store.Put(ctx, s); err != nil {
		return Reply{}, fmt.Errorf("%w: %w", status.ErrPersistence, err)
	}
	return Reply{Text: fmt.Sprintf(PromptPhone, name), Stage: s.Stage}, nil
}

func (m *SessionManager) submitPhone(ctx context.Context, s *models.ConversationSession, text string) (Reply, error) {
	phone, err := NormalizePhone(text, m.region)
	if err != nil {
		s.UpdatedAt = m.now()
		if err := m.store.Put(ctx, s); err != nil {
			slog.Error("Failed to touch session", "key", s.Key, "error", err)
		}
		return Reply{Text: PromptInvalidPhone, Stage: s.Stage}, err
	}
	s.Phone = phone

	// the session ends here whether or not the checkout starts
	if err := m.store.Delete(ctx, s.Key); err != nil {
		return Reply{}, fmt.Errorf("%w: %w", status.ErrPersistence, err)
	}

	url, err := m.checkout.StartCheckout(ctx, models.CheckoutRequest{
		EventID:   s.EventID,
		OwnerID:   s.OwnerID,
		OwnerName: s.Name,
		Contact:   s.Phone,
	})
	if err != nil {
		return Reply{Text: checkoutErrorText(err), Stage: models.StageIdle}, err
	}
	return Reply{Text: fmt.Sprintf(PromptCheckout, url), Stage: models.StageIdle, CheckoutURL: url}, nil
}

func (m *SessionManager) load(ctx context.Context, key string) (*models.ConversationSession, error) {
	s, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			return nil, status.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %w", status.ErrPersistence, err)
	}

	if m.ttl > 0 && m.now().Sub(s.UpdatedAt) > m.ttl {
		if err := m.store.Delete(ctx, key); err != nil {
			slog.Error("Failed to drop expired session", "key", key, "error", err)
		}
		return nil, status.ErrSessionExpired
	}
	return s, nil
}

// NormalizePhone validates raw as a phone number for the default region and
// returns it in E.164 format.
func NormalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return "", fmt.Errorf("%w: phone number: %w", status.ErrValidation, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: phone number %q is not valid", status.ErrValidation, raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func expiredReply(err error) (Reply, error) {
	if errors.Is(err, status.ErrSessionExpired) {
		return Reply{Text: PromptExpired, Stage: models.StageIdle}, err
	}
	return Reply{}, err
}

func stagePrompt(s *models.ConversationSession) string {
	if s.Stage == models.StageAwaitingPhone {
		return fmt.Sprintf(PromptPhone, s.Name)
	}
	return PromptName
}

func checkoutErrorText(err error) string {
	switch {
	case errors.Is(err, status.ErrSoldOut):
		return "Sorry, this party is sold out."
	case errors.Is(err, status.ErrEventNotFound):
		return "Sorry, this party is no longer available."
	default:
		return PromptCheckoutError
	}
}
