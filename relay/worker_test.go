package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	mu        sync.Mutex
	calls     []mockPublishCall
	failCount atomic.Int32 // Number of times to fail before succeeding
	closed    atomic.Bool
}

type mockPublishCall struct {
	topic string
	key   string
	value []byte
}

func (m *mockSink) Publish(topic, key string, value []byte) error {
	if m.failCount.Load() > 0 {
		m.failCount.Add(-1)
		return fmt.Errorf("mock publish failure")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockPublishCall{topic: topic, key: key, value: value})
	return nil
}

func (m *mockSink) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *mockSink) published() []mockPublishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublishCall(nil), m.calls...)
}

func newTestWorker(t *testing.T, snk Sink, maxRetries int) *Worker {
	t.Helper()
	w, err := NewWorker(WorkerConfig{
		Name:         "test",
		Sink:         snk,
		TopicPrefix:  "cache.events",
		QueueSize:    8,
		RetryInitial: time.Millisecond,
		RetryMax:     5 * time.Millisecond,
		MaxRetries:   maxRetries,
	})
	require.NoError(t, err)
	return w
}

func TestNewWorker_Validation(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Sink: &mockSink{}})
	assert.Error(t, err)
	_, err = NewWorker(WorkerConfig{Name: "x"})
	assert.Error(t, err)

	w, err := NewWorker(WorkerConfig{Name: "x", Sink: &mockSink{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultQueueSize, cap(w.queue))
	assert.Equal(t, DefaultMaxRetries, w.config.MaxRetries)
}

func TestWorker_PublishesInOrder(t *testing.T) {
	snk := &mockSink{}
	w := newTestWorker(t, snk, 3)
	w.Start()
	defer w.Stop()

	for i := 1; i <= 3; i++ {
		require.True(t, w.Enqueue(ChangeEvent{Seq: uint64(i), Cache: "orders", Key: fmt.Sprintf("k%d", i), Operation: OpUpdate}))
	}

	require.Eventually(t, func() bool { return len(snk.published()) == 3 }, time.Second, time.Millisecond)
	for i, call := range snk.published() {
		assert.Equal(t, "cache.events.orders", call.topic)
		assert.Equal(t, fmt.Sprintf("k%d", i+1), call.key)

		var env map[string]any
		require.NoError(t, json.Unmarshal(call.value, &env))
		assert.Equal(t, "u", env["op"])
	}
}

func TestWorker_DeleteSendsTombstone(t *testing.T) {
	snk := &mockSink{}
	w := newTestWorker(t, snk, 3)
	w.Start()
	defer w.Stop()

	w.Enqueue(ChangeEvent{Seq: 1, Cache: "orders", Key: "k", Operation: OpDelete})

	require.Eventually(t, func() bool { return len(snk.published()) == 2 }, time.Second, time.Millisecond)
	calls := snk.published()
	assert.NotNil(t, calls[0].value)
	assert.Nil(t, calls[1].value)
}

func TestWorker_RetriesWithBackoff(t *testing.T) {
	snk := &mockSink{}
	snk.failCount.Store(3)
	w := newTestWorker(t, snk, 10)
	w.Start()
	defer w.Stop()

	w.Enqueue(ChangeEvent{Seq: 1, Cache: "orders", Key: "k", Operation: OpInsert})
	require.Eventually(t, func() bool { return len(snk.published()) == 1 }, time.Second, time.Millisecond)
}

func TestWorker_GivesUpAfterMaxRetries(t *testing.T) {
	snk := &mockSink{}
	snk.failCount.Store(2)
	w := newTestWorker(t, snk, 2)
	w.Start()
	defer w.Stop()

	w.Enqueue(ChangeEvent{Seq: 1, Cache: "orders", Key: "lost", Operation: OpInsert})
	w.Enqueue(ChangeEvent{Seq: 2, Cache: "orders", Key: "kept", Operation: OpInsert})

	require.Eventually(t, func() bool { return len(snk.published()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "kept", snk.published()[0].key)
}

func TestWorker_QueueFullDrops(t *testing.T) {
	w := newTestWorker(t, &mockSink{}, 1)
	for i := 0; i < 8; i++ {
		require.True(t, w.Enqueue(ChangeEvent{Seq: uint64(i)}))
	}
	assert.False(t, w.Enqueue(ChangeEvent{Seq: 9}))
}

func TestWorker_StartStopIdempotent(t *testing.T) {
	w := newTestWorker(t, &mockSink{}, 1)
	w.Stop()
	w.Start()
	w.Start()
	w.Stop()
	w.Stop()
}

func TestBuildTopic(t *testing.T) {
	w := newTestWorker(t, &mockSink{}, 1)
	assert.Equal(t, "cache.events.orders", w.buildTopic("orders"))
	w.config.TopicPrefix = ""
	assert.Equal(t, "orders", w.buildTopic("orders"))
}
