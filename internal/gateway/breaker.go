package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medremind/internal/errors"
)

// BreakerConfig configures the circuit breaker around a gateway
type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// Breaker guards a Gateway with a circuit breaker. While the circuit is open
// calls fail fast with ErrGatewayUnavailable instead of reaching the platform.
type Breaker struct {
	next   Gateway
	cb     *gobreaker.CircuitBreaker[any]
	logger *zap.Logger
}

// NewBreaker wraps next
func NewBreaker(next Gateway, config BreakerConfig, logger *zap.Logger) *Breaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}

	settings := gobreaker.Settings{
		Name:        "notification-gateway",
		MaxRequests: 1,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		// a denied permission is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, apperrors.ErrPermissionDenied) || errors.Is(err, apperrors.ErrInvalidTime)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Gateway circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Breaker{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker[any](settings),
		logger: logger,
	}
}

// State reports the current circuit state
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) RequestPermission(ctx context.Context) (bool, error) {
	v, err := b.execute(func() (any, error) { return b.next.RequestPermission(ctx) })
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (b *Breaker) ScheduleDaily(ctx context.Context, hour, minute int, p Payload) (Handle, error) {
	v, err := b.execute(func() (any, error) { return b.next.ScheduleDaily(ctx, hour, minute, p) })
	if err != nil {
		return "", err
	}
	return v.(Handle), nil
}

func (b *Breaker) ScheduleOnce(ctx context.Context, at time.Time, p Payload) (Handle, error) {
	v, err := b.execute(func() (any, error) { return b.next.ScheduleOnce(ctx, at, p) })
	if err != nil {
		return "", err
	}
	return v.(Handle), nil
}

func (b *Breaker) Cancel(ctx context.Context, h Handle) error {
	_, err := b.execute(func() (any, error) { return nil, b.next.Cancel(ctx, h) })
	return err
}

func (b *Breaker) CancelAll(ctx context.Context) error {
	_, err := b.execute(func() (any, error) { return nil, b.next.CancelAll(ctx) })
	return err
}

func (b *Breaker) ListScheduled(ctx context.Context) ([]Scheduled, error) {
	v, err := b.execute(func() (any, error) { return b.next.ListScheduled(ctx) })
	if err != nil {
		return nil, err
	}
	return v.([]Scheduled), nil
}

func (b *Breaker) Events() <-chan Event {
	return b.next.Events()
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperrors.Wrap(err, apperrors.ErrGatewayUnavailable.Code, apperrors.ErrGatewayUnavailable.Message)
	}
	return v, err
}
