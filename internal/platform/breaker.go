// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package platform

import (
	"context"
	"errors"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/mediarelay/internal/config"
	"github.com/tomtom215/mediarelay/internal/logging"
	"github.com/tomtom215/mediarelay/internal/metrics"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("platform: circuit open")

// Breaker wraps a Client with a circuit breaker.
//
// Flood waits, permission errors and caller cancellation are reported to
// the breaker as successes: they describe the request, not the health of
// the platform, and must not open the circuit.
type Breaker struct {
	next Client
	cb   *gobreaker.CircuitBreaker[interface{}]
	name string
}

// NewBreaker wraps next.
func NewBreaker(next Client, cfg config.BreakerConfig) *Breaker {
	name := "platform"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	minRequests := cfg.MinRequests
	ratio := cfg.FailureRatio
	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= ratio
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if _, ok := AsFloodWait(err); ok {
				return true
			}
			return errors.Is(err, ErrMissingPermission) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})
	return &Breaker{next: next, cb: cb, name: name}
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
			return nil, errors.Join(ErrCircuitOpen, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

func (b *Breaker) send(fn func() (int, error)) (int, error) {
	res, err := b.execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return 0, err
	}
	id, _ := res.(int)
	return id, nil
}

func (b *Breaker) SendText(ctx context.Context, chatID, text string, buttons ...Button) (int, error) {
	return b.send(func() (int, error) { return b.next.SendText(ctx, chatID, text, buttons...) })
}

func (b *Breaker) SendCachedMedia(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return b.send(func() (int, error) { return b.next.SendCachedMedia(ctx, chatID, fileID, caption) })
}

func (b *Breaker) SendPhoto(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return b.send(func() (int, error) { return b.next.SendPhoto(ctx, chatID, fileID, caption) })
}

func (b *Breaker) SendVideo(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return b.send(func() (int, error) { return b.next.SendVideo(ctx, chatID, fileID, caption) })
}

func (b *Breaker) SendDocument(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return b.send(func() (int, error) { return b.next.SendDocument(ctx, chatID, fileID, caption) })
}

func (b *Breaker) SendAudio(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return b.send(func() (int, error) { return b.next.SendAudio(ctx, chatID, fileID, caption) })
}

func (b *Breaker) SendVoice(ctx context.Context, chatID, fileID, caption string) (int, error) {
	return b.send(func() (int, error) { return b.next.SendVoice(ctx, chatID, fileID, caption) })
}

func (b *Breaker) Download(ctx context.Context, fileID, dir string) (string, error) {
	res, err := b.execute(func() (interface{}, error) { return b.next.Download(ctx, fileID, dir) })
	if err != nil {
		return "", err
	}
	path, _ := res.(string)
	return path, nil
}

func (b *Breaker) Pin(ctx context.Context, chatID string, messageID int) error {
	_, err := b.execute(func() (interface{}, error) { return nil, b.next.Pin(ctx, chatID, messageID) })
	return err
}

func (b *Breaker) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := b.execute(func() (interface{}, error) { return nil, b.next.AnswerCallback(ctx, callbackID, text) })
	return err
}

// Updates is not guarded; the long poll has its own retry loop.
func (b *Breaker) Updates(ctx context.Context) <-chan Update {
	return b.next.Updates(ctx)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
