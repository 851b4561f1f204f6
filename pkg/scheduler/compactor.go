package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shardkeep/shardkeep/pkg/database"
	"github.com/shardkeep/shardkeep/pkg/log"
	"github.com/shardkeep/shardkeep/pkg/metrics"
)

// DefaultInterval is how often Compactor runs a pass when none is given.
const DefaultInterval = 5 * time.Minute

// Compactor periodically opens every collection in a database (which
// re-derives, in memory, the tree of any uncached collection whose
// collection.dat is missing or corrupt) and recomputes the database
// root hash. It writes no tree files. It mirrors the teacher's
// ticker/stopCh background-loop shape (grounded on the container
// scheduler it replaces) applied to Merkle maintenance instead of
// container placement.
type Compactor struct {
	db       *database.Database
	interval time.Duration
	logger   zerolog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
	done     chan struct{}
}

// NewCompactor creates a Compactor for db. interval <= 0 uses DefaultInterval.
func NewCompactor(db *database.Database, interval time.Duration) *Compactor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Compactor{
		db:       db,
		interval: interval,
		logger:   log.WithComponent("compactor"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the compaction loop on a background goroutine.
func (c *Compactor) Start() {
	go c.run()
}

// Stop signals the loop to exit and blocks until it has.
func (c *Compactor) Stop() {
	close(c.stopCh)
	<-c.done
}

func (c *Compactor) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runOnce(context.Background())
		case <-c.stopCh:
			return
		}
	}
}

// runOnce performs one compaction pass, logging but not stopping on a
// per-collection failure so that one corrupt collection doesn't block
// repair of the rest.
func (c *Compactor) runOnce(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := metrics.NewTimer()
	names := c.db.Collections()
	for _, name := range names {
		if _, err := c.db.Collection(ctx, name); err != nil {
			c.logger.Error().Err(err).Str("collection", name).Msg("compaction pass failed")
		}
	}

	root, err := c.db.RootHash(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("compute database root hash")
		return
	}
	timer.ObserveDurationVec(metrics.RootHashDuration, "database")

	c.logger.Info().
		Int("collections", len(names)).
		Str("root_hash", fmt.Sprintf("%x", root)).
		Msg("compaction pass complete")
}
