package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/tgcollect/internal/config"
	"github.com/dokzlo13/tgcollect/internal/ledger"
)

// LedgerService prunes old sessions on an interval.
type LedgerService struct {
	cfg    *config.Config
	ledger *ledger.Ledger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(cfg *config.Config, l *ledger.Ledger) *LedgerService {
	return &LedgerService{cfg: cfg, ledger: l}
}

// Run periodically cleans up old sessions until ctx is cancelled.
func (s *LedgerService) Run(ctx context.Context) error {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		log.Info().Msg("Session retention disabled")
		return nil
	}

	s.cleanup(retention)

	interval := s.cfg.Ledger.CleanupInterval.Duration()
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cleanup(retention)
		}
	}
}

func (s *LedgerService) cleanup(retention time.Duration) {
	deleted, err := s.ledger.DeleteOlderThan(retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old sessions")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old sessions")
	}
}
