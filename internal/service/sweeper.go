package service

import (
	"context"
	"time"

	"TG_group_guardian/pkg/logger"

	"go.uber.org/zap"
)

// Sweeper periodically drives overdue pending challenges to expired. One
// sweep pass runs at a time; the poll interval should sit well below the
// challenge timeout.
type Sweeper struct {
	verification VerificationServiceI
	interval     time.Duration
}

func NewSweeper(verification VerificationServiceI, interval time.Duration) *Sweeper {
	return &Sweeper{
		verification: verification,
		interval:     interval,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	log := logger.Logger()
	log.Info("sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if err := s.verification.SweepExpired(ctx, time.Now().UTC()); err != nil {
				log.Error("sweep pass failed", zap.Error(err))
			}
		}
	}
}
