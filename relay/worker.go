package relay

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oracle/coherence-js-client-sub001/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	// Default number of events a worker queues before dropping
	DefaultQueueSize = 4096
	// Default initial retry delay for failed publish operations
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
	// Maximum number of retry attempts before giving up on an event
	DefaultMaxRetries = 100
)

// WorkerConfig configures one sink worker
type WorkerConfig struct {
	Name            string        // Sink name (metrics and logs)
	Sink            Sink          // Destination sink
	TopicPrefix     string        // Topic prefix (e.g., "cache.events")
	QueueSize       int           // Queued events before Enqueue drops
	RetryInitial    time.Duration // Initial retry delay
	RetryMax        time.Duration // Max retry delay
	RetryMultiplier float64       // Backoff multiplier
	MaxRetries      int           // Maximum retry attempts
}

// Worker drains its queue into a sink, one event at a time and in order
type Worker struct {
	config      WorkerConfig
	queue       chan ChangeEvent
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     atomic.Bool
	lifecycleMu sync.Mutex // Protects Start/Stop lifecycle operations
}

// NewWorker creates a worker; call Start to begin publishing
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	return &Worker{
		config: config,
		queue:  make(chan ChangeEvent, config.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Enqueue queues evt without blocking. It reports false when the queue is full.
func (w *Worker) Enqueue(evt ChangeEvent) bool {
	select {
	case w.queue <- evt:
		telemetry.RelayQueueDepth.With(w.config.Name).Inc()
		return true
	default:
		telemetry.RelayPublishedTotal.With(w.config.Name, "dropped").Inc()
		log.Warn().
			Str("worker", w.config.Name).
			Str("cache", evt.Cache).
			Uint64("seq", evt.Seq).
			Msg("Relay queue full, dropping event")
		return false
	}
}

// Start starts the worker goroutine
func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return
	}

	w.running.Store(true)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	log.Info().Str("worker", w.config.Name).Msg("Starting relay worker")
	go w.loop()
}

// Stop stops the worker after the event in flight. Queued events stay
// queued and are published if the worker is started again.
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running.Load() {
		return
	}

	close(w.stopCh)
	<-w.doneCh
	w.running.Store(false)

	log.Info().Str("worker", w.config.Name).Msg("Relay worker stopped")
}

func (w *Worker) loop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case evt := <-w.queue:
			telemetry.RelayQueueDepth.With(w.config.Name).Dec()
			if err := w.processEvent(evt); err != nil {
				telemetry.RelayPublishedTotal.With(w.config.Name, "failed").Inc()
				log.Error().
					Err(err).
					Str("worker", w.config.Name).
					Uint64("seq", evt.Seq).
					Msg("Failed to relay event")
				continue
			}
			telemetry.RelayPublishedTotal.With(w.config.Name, "success").Inc()
		}
	}
}

// processEvent publishes one event, followed by a tombstone for deletes
func (w *Worker) processEvent(evt ChangeEvent) error {
	data, err := Encode(evt)
	if err != nil {
		return err
	}

	topic := w.buildTopic(evt.Cache)
	if err := w.publishWithRetry(topic, evt.Key, data); err != nil {
		return err
	}

	if evt.Operation == OpDelete {
		return w.publishWithRetry(topic, evt.Key, Tombstone())
	}
	return nil
}

// buildTopic builds the topic name for a cache
func (w *Worker) buildTopic(cache string) string {
	if w.config.TopicPrefix == "" {
		return cache
	}
	return fmt.Sprintf("%s.%s", w.config.TopicPrefix, cache)
}

// publishWithRetry publishes data with exponential backoff.
// Returns error if max retries exhausted or worker stopped.
func (w *Worker) publishWithRetry(topic, key string, data []byte) error {
	delay := w.config.RetryInitial
	attempts := 0

	for {
		err := w.config.Sink.Publish(topic, key, data)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= w.config.MaxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", w.config.MaxRetries, topic, err)
		}

		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Str("topic", topic).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to publish event, retrying")

		if !w.sleep(delay) {
			return fmt.Errorf("worker stopped during retry")
		}

		delay = time.Duration(float64(delay) * w.config.RetryMultiplier)
		if delay > w.config.RetryMax {
			delay = w.config.RetryMax
		}
	}
}

// sleep sleeps for the given duration, checking stopCh.
// Returns true if sleep completed, false if stopped.
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
