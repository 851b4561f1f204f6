package metrics

import "time"

// StatsSource is implemented by pkg/database.Database; it is defined
// here, not imported, to avoid metrics depending on database and
// database depending on metrics.
type StatsSource interface {
	Collections() []string
	CollectionLen(name string) (int, error)
}

// Collector periodically samples a database's collection sizes into
// the RecordsTotal and CollectionsTotal gauges.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector for source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{source: source, stopCh: make(chan struct{})}
}

// Start begins periodic collection on a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	names := c.source.Collections()
	CollectionsTotal.Set(float64(len(names)))

	for _, name := range names {
		n, err := c.source.CollectionLen(name)
		if err != nil {
			continue
		}
		RecordsTotal.WithLabelValues(name).Set(float64(n))
	}
}
