package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Updater periodically refreshes gauges that are sampled rather than
// event-driven, currently the database pool statistics.
type Updater struct {
	pool     *pgxpool.Pool
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates a new metrics updater. A nil pool is allowed when the
// outcome store is not configured; the updater then idles until stopped.
func NewUpdater(pool *pgxpool.Pool, interval time.Duration) *Updater {
	if interval == 0 {
		interval = 15 * time.Second
	}
	return &Updater{
		pool:     pool,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the metrics update loop
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	// Update immediately on start
	u.update()

	for {
		select {
		case <-ticker.C:
			u.update()
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update() {
	if u.pool == nil {
		return
	}

	stats := u.pool.Stat()
	UpdateDatabaseConnections(stats.AcquiredConns(), stats.IdleConns())
}
