package relay

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oracle/coherence-js-client-sub001/cfg"
	"github.com/oracle/coherence-js-client-sub001/events"
	"github.com/rs/zerolog/log"
)

// Config configures a Relay
type Config struct {
	TopicPrefix   string
	KeyPatterns   []string
	CachePatterns []string
	QueueSize     int
	MaxRetries    int
	SinkConfigs   []cfg.SinkConfiguration
}

// ConfigFrom converts the [relay] section of the configuration
func ConfigFrom(c cfg.RelayConfiguration) Config {
	return Config{
		TopicPrefix:   c.TopicPrefix,
		KeyPatterns:   c.KeyPatterns,
		CachePatterns: c.CachePatterns,
		QueueSize:     c.QueueSize,
		MaxRetries:    c.MaxRetries,
		SinkConfigs:   c.Sinks,
	}
}

// Relay fans filtered map events out to one worker per sink
type Relay struct {
	config  Config
	filter  Filter
	workers []*Worker
	seq     atomic.Uint64
	running atomic.Bool
	mu      sync.Mutex
}

// New creates a relay and one worker per configured sink. Sinks are built by
// the factories registered with RegisterSink.
func New(config Config) (*Relay, error) {
	filter, err := NewGlobFilter(config.KeyPatterns, config.CachePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter: %w", err)
	}

	r := &Relay{
		config:  config,
		filter:  filter,
		workers: make([]*Worker, 0, len(config.SinkConfigs)),
	}

	for _, sinkCfg := range config.SinkConfigs {
		snk, err := createSink(sinkCfg)
		if err == nil {
			if err = r.AddSink(sinkCfg.Name, snk); err != nil {
				snk.Close()
			}
		}
		if err != nil {
			r.closeSinks()
			return nil, fmt.Errorf("failed to add sink %q: %w", sinkCfg.Name, err)
		}
		log.Info().Str("sink", sinkCfg.Name).Str("type", sinkCfg.Type).Msg("Added relay sink")
	}

	return r, nil
}

// AddSink adds a worker publishing to snk
func (r *Relay) AddSink(name string, snk Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := NewWorker(WorkerConfig{
		Name:        name,
		Sink:        snk,
		TopicPrefix: r.config.TopicPrefix,
		QueueSize:   r.config.QueueSize,
		MaxRetries:  r.config.MaxRetries,
	})
	if err != nil {
		return err
	}
	r.workers = append(r.workers, w)
	if r.running.Load() {
		w.Start()
	}
	return nil
}

// Start starts every worker
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running.Swap(true) {
		return
	}
	for _, w := range r.workers {
		w.Start()
	}
	log.Info().Int("workers", len(r.workers)).Msg("Relay started")
}

// Stop stops every worker and closes the sinks
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running.Swap(false) {
		return
	}
	for _, w := range r.workers {
		w.Stop()
	}
	r.closeSinksLocked()
	log.Info().Msg("Relay stopped")
}

func (r *Relay) closeSinks() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeSinksLocked()
}

func (r *Relay) closeSinksLocked() {
	for _, w := range r.workers {
		if err := w.config.Sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", w.config.Name).Msg("Failed to close sink")
		}
	}
}

// Enqueue stamps evt with a sequence number and queues it on every worker.
// Events rejected by the filter are skipped and reported false.
func (r *Relay) Enqueue(evt ChangeEvent) bool {
	if !r.filter.Match(evt.Cache, evt.Key) {
		return false
	}
	evt.Seq = r.seq.Add(1)

	r.mu.Lock()
	workers := r.workers
	r.mu.Unlock()
	for _, w := range workers {
		w.Enqueue(evt)
	}
	return true
}

// Listener returns a map listener relaying every event it receives
func (r *Relay) Listener() events.MapListener {
	return events.OnAny(r.relayEvent)
}

func (r *Relay) relayEvent(e *events.MapEvent) {
	evt, err := ChangeFromEvent(e, time.Now())
	if err != nil {
		log.Warn().Err(err).Str("cache", e.Source()).Msg("Skipping undecodable event")
		return
	}
	r.Enqueue(evt)
}

// ChangeFromEvent decodes e into a ChangeEvent received at ts
func ChangeFromEvent(e *events.MapEvent, ts time.Time) (ChangeEvent, error) {
	key, err := e.Key()
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("decode key: %w", err)
	}
	before, err := e.OldValue()
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("decode old value: %w", err)
	}
	after, err := e.NewValue()
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("decode new value: %w", err)
	}

	evt := ChangeEvent{
		Cache:     e.Source(),
		Key:       fmt.Sprint(key),
		Before:    before,
		After:     after,
		Synthetic: e.IsSynthetic(),
		Timestamp: ts.UnixMilli(),
	}
	switch e.Type() {
	case events.EntryInserted:
		evt.Operation = OpInsert
	case events.EntryUpdated:
		evt.Operation = OpUpdate
	case events.EntryDeleted:
		evt.Operation = OpDelete
	default:
		return ChangeEvent{}, fmt.Errorf("unknown event type %s", e.Type())
	}
	return evt, nil
}

// SinkFactory is a function that creates a Sink from a configuration
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

var (
	sinkFactories = make(map[string]SinkFactory)
	factoryMu     sync.RWMutex
)

// RegisterSink registers a sink factory for a type
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}

// createSink creates a sink based on the configuration
func createSink(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}
	return factory(config)
}
