package worker

import (
	"context"
	"log"
	"time"

	"SolPayGate/internal/store"
)

// Sweeper deletes expired, never-settled authorizations on a fixed cadence.
// It runs beside request handling and by construction cannot touch a record
// an in-flight settlement holds: claimed records carry a signature and the
// sweep skips those.
type Sweeper struct {
	Store    store.NonceStore
	Interval time.Duration
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		if err := s.SweepOnce(ctx); err != nil {
			log.Printf("sweep error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) error {
	removed, err := s.Store.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("sweep removed=%d", removed)
	}
	return nil
}
