package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"partyflow/internal/status"
	"partyflow/models"
	"partyflow/monitoring"
	"partyflow/utils"
)

type GuardSettings struct {
	Timeout      time.Duration
	MaxRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// GuardedGateway bounds every gateway call with a timeout and trips a
// circuit breaker when the gateway keeps failing. Calls are never retried.
type GuardedGateway struct {
	next    Gateway
	timeout time.Duration
	breaker *utils.CircuitBreaker
}

func NewGuardedGateway(next Gateway, st GuardSettings) *GuardedGateway {
	if st.Timeout <= 0 {
		st.Timeout = 10 * time.Second
	}
	return &GuardedGateway{
		next:    next,
		timeout: st.Timeout,
		breaker: utils.NewCircuitBreaker(string(next.Provider()), utils.BreakerSettings{
			MaxRequests:  st.MaxRequests,
			Timeout:      st.OpenTimeout,
			FailureRatio: st.FailureRatio,
			IsSuccessful: func(err error) bool { return err == nil || isCallerError(err) },
		}),
	}
}

func (g *GuardedGateway) Provider() Provider {
	return g.next.Provider()
}

// Unwrap returns the wrapped gateway.
func (g *GuardedGateway) Unwrap() Gateway {
	return g.next
}

func (g *GuardedGateway) CreateCheckout(ctx context.Context, in CheckoutInput) (*models.CheckoutSession, error) {
	var session *models.CheckoutSession
	err := g.call(ctx, "create_checkout", func(ctx context.Context) error {
		s, err := g.next.CreateCheckout(ctx, in)
		session = s
		return err
	})
	return session, err
}

func (g *GuardedGateway) GetCheckout(ctx context.Context, ref string) (*models.CheckoutSession, error) {
	var session *models.CheckoutSession
	err := g.call(ctx, "get_checkout", func(ctx context.Context) error {
		s, err := g.next.GetCheckout(ctx, ref)
		session = s
		return err
	})
	return session, err
}

func (g *GuardedGateway) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.breaker.Execute(ctx, fn)
	monitoring.TrackGatewayCall(operation, started, err)

	if err == nil || isCallerError(err) || errors.Is(err, status.ErrExternalService) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", status.ErrExternalService, g.next.Provider(), operation, err)
}

// isCallerError reports errors caused by what was asked for, such as an
// unknown checkout ref. The gateway answered, so they are not outages.
func isCallerError(err error) bool {
	return errors.Is(err, status.ErrCheckoutNotFound) || errors.Is(err, status.ErrValidation)
}
