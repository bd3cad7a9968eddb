package reservation

import (
	"context"
	"log"
	"time"

	"github.com/kurniawanc/pos-ledger/internal/ledger"
)

// Sweeper releases cart holds whose TTL expired, so abandoned carts never
// lock inventory permanently. Units pinned by a Reserved transaction carry
// no expiry and are never swept.
type Sweeper struct {
	Ledger   ledger.Store
	Interval time.Duration
}

func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				released, err := s.Ledger.SweepExpired(ctx, time.Now())
				if err != nil {
					log.Printf("reservation sweep: %v", err)
					continue
				}
				if len(released) > 0 {
					log.Printf("reservation sweep: released %d expired holds", len(released))
				}
			}
		}
	}()
}
