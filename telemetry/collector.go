package telemetry

import (
	"sync"
	"time"
)

// ListenerStats is a point-in-time view of one cache handle's listener state
type ListenerStats struct {
	KeyGroups    int
	FilterGroups int
	Listeners    int
}

// StatsProvider is implemented by components that expose listener stats
type StatsProvider interface {
	ListenerStats() ListenerStats
}

// MetricsCollector periodically collects stats and updates telemetry gauges
type MetricsCollector struct {
	mu        sync.Mutex
	providers map[string]StatsProvider
	interval  time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		providers: make(map[string]StatsProvider),
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Track adds a provider under name, replacing any previous one
func (mc *MetricsCollector) Track(name string, p StatsProvider) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.providers[name] = p
}

// Untrack removes a provider
func (mc *MetricsCollector) Untrack(name string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.providers, name)
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.Collect()

	for {
		select {
		case <-ticker.C:
			mc.Collect()
		case <-mc.stopCh:
			return
		}
	}
}

// Collect sums stats across providers and updates the gauges. Returns the totals.
func (mc *MetricsCollector) Collect() ListenerStats {
	mc.mu.Lock()
	providers := make([]StatsProvider, 0, len(mc.providers))
	for _, p := range mc.providers {
		providers = append(providers, p)
	}
	mc.mu.Unlock()

	var total ListenerStats
	for _, p := range providers {
		s := p.ListenerStats()
		total.KeyGroups += s.KeyGroups
		total.FilterGroups += s.FilterGroups
		total.Listeners += s.Listeners
	}

	ListenerGroupsActive.With("key").Set(float64(total.KeyGroups))
	ListenerGroupsActive.With("filter").Set(float64(total.FilterGroups))
	ListenersRegistered.Set(float64(total.Listeners))
	return total
}
