package signaling

import (
	"context"
	"time"

	"go.uber.org/zap"

	"peerpractice-backend/pkg/constants"
	"peerpractice-backend/pkg/logger"
)

// Sweeper periodically expires overdue pending call requests so that
// requests nobody answered do not linger as pending forever
type Sweeper struct {
	service  *Service
	interval time.Duration
}

// NewSweeper creates a sweeper with the default interval
func NewSweeper(service *Service) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: constants.CallRequestSweepInterval,
	}
}

// Run blocks, sweeping on the interval until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	logger.Info("Call request sweeper started",
		zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Call request sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.service.ExpireOverdueRequests(ctx); err != nil {
				logger.Error("Call request sweep failed", zap.Error(err))
			}
		}
	}
}
