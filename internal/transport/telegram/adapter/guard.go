package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	logx "postbot/pkg/logx"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("telegram api unavailable")

func newLimiter(perSec int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSec), perSec)
}

func newBreaker(cfg BreakerConfig, log logx.Logger) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: uint32(cfg.HalfOpenMax),
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.Failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				logx.String("breaker", name),
				logx.String("from", from.String()),
				logx.String("to", to.String()),
			)
		},
		IsSuccessful: breakerSuccess,
	})
}

// breakerSuccess treats API rejections as healthy round trips. A bot kicked
// from one channel must not block delivery to the others.
func breakerSuccess(err error) bool {
	return err == nil || !isTransportError(err)
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// call runs fn behind the shared limiter and breaker.
func call[T any](ctx context.Context, a *Adapter, op string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return zero, err
	}
	v, err := a.cb.Execute(func() (any, error) {
		r, err := fn()
		return r, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, fmt.Errorf("telegram %s: %w", op, ErrUnavailable)
	}
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}
