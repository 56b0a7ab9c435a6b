package payment

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"partyflow/internal/status"
	"partyflow/models"

	"github.com/google/uuid"
)

// SandboxGateway is an in-process gateway for development. Checkouts stay
// unpaid until MarkPaid is called.
type SandboxGateway struct {
	appURL string

	mu       sync.Mutex
	sessions map[string]*models.CheckoutSession
}

func NewSandboxGateway(appURL string) *SandboxGateway {
	return &SandboxGateway{
		appURL:   appURL,
		sessions: make(map[string]*models.CheckoutSession),
	}
}

func (g *SandboxGateway) Provider() Provider {
	return ProviderSandbox
}

func (g *SandboxGateway) CreateCheckout(_ context.Context, in CheckoutInput) (*models.CheckoutSession, error) {
	ref := "cs_sandbox_" + uuid.NewString()

	metadata := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		metadata[k] = v
	}

	s := &models.CheckoutSession{
		Ref:      ref,
		URL:      fmt.Sprintf("%s/dev/checkout?ref=%s", g.appURL, url.QueryEscape(ref)),
		Status:   models.PaymentUnpaid,
		Amount:   in.Amount,
		Currency: in.Currency,
		Metadata: metadata,
	}

	g.mu.Lock()
	g.sessions[ref] = s
	g.mu.Unlock()

	copied := *s
	return &copied, nil
}

func (g *SandboxGateway) GetCheckout(_ context.Context, ref string) (*models.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[ref]
	if !ok {
		return nil, fmt.Errorf("sandbox checkout %s: %w", ref, status.ErrCheckoutNotFound)
	}
	copied := *s
	return &copied, nil
}

// MarkPaid simulates the buyer completing payment at the gateway.
func (g *SandboxGateway) MarkPaid(ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[ref]
	if !ok {
		return fmt.Errorf("sandbox checkout %s: %w", ref, status.ErrCheckoutNotFound)
	}
	s.Status = models.PaymentPaid
	return nil
}
