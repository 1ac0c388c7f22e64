// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mediarelay/internal/logging"
)

// SweepFunc performs one maintenance pass and reports how many records it
// changed.
type SweepFunc func(ctx context.Context) (int, error)

// SweepConfig controls a SweepService.
type SweepConfig struct {
	// Interval between passes. Required.
	Interval time.Duration

	// Timeout bounds a single pass. Zero means Interval.
	Timeout time.Duration

	// RunOnStartup performs a pass before the first tick.
	RunOnStartup bool
}

// SweepService runs a SweepFunc on a ticker. A failed pass is logged and
// retried on the next tick instead of restarting the service.
type SweepService struct {
	name   string
	sweep  SweepFunc
	config SweepConfig
	logger zerolog.Logger
}

// NewSweepService creates a sweep service named name.
func NewSweepService(name string, sweep SweepFunc, cfg SweepConfig) *SweepService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	return &SweepService{
		name:   name,
		sweep:  sweep,
		config: cfg,
		logger: logging.WithComponent(name),
	}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.config.Interval).Msg("Sweep service starting")

	if s.config.RunOnStartup {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *SweepService) run(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	n, err := s.sweep(logging.ContextWithNewCorrelationID(passCtx))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Sweep failed, retrying next interval")
		return
	}
	ev := s.logger.Debug()
	if n > 0 {
		ev = s.logger.Info()
	}
	ev.Int("changed", n).Dur("duration", time.Since(start)).Msg("Sweep complete")
}

func (s *SweepService) String() string { return s.name }
