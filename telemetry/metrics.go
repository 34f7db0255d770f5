package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// RequestBuckets for correlated subscribe/unsubscribe round trips
	RequestBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	// PageBuckets for a full page fetch (open stream, drain frames)
	PageBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)

// Event stream metrics
var (
	// EventStreamsOpen tracks event streams currently open
	EventStreamsOpen Gauge = NoopStat{}

	// EventStreamFailuresTotal counts event streams that ended unexpectedly
	EventStreamFailuresTotal Counter = NoopStat{}

	// EventsReceivedTotal counts inbound map events by type (inserted, updated, deleted)
	EventsReceivedTotal CounterVec = noopCounterVec{}

	// EventsDroppedTotal counts events naming no known listener group
	EventsDroppedTotal Counter = NoopStat{}

	// SubscriptionRequestsTotal counts subscription requests by scope (init, key, filter),
	// op (subscribe, unsubscribe) and result (success, failed)
	SubscriptionRequestsTotal CounterVec = noopCounterVec{}

	// RequestDurationSeconds measures correlated request round trips
	RequestDurationSeconds Histogram = NoopStat{}

	// ListenerGroupsActive tracks listener groups by scope (key, filter)
	ListenerGroupsActive GaugeVec = noopGaugeVec{}

	// ListenersRegistered tracks application listeners across all groups
	ListenersRegistered Gauge = NoopStat{}

	// ListenerPanicsTotal counts listener callbacks that panicked
	ListenerPanicsTotal Counter = NoopStat{}
)

// Paging metrics
var (
	// PageFetchesTotal counts page fetches by kind (keys, entries, values) and result
	PageFetchesTotal CounterVec = noopCounterVec{}

	// PageFetchSeconds measures page fetch latency by kind
	PageFetchSeconds HistogramVec = noopHistogramVec{}

	// PageRowsTotal counts rows decoded from pages by kind
	PageRowsTotal CounterVec = noopCounterVec{}
)

// Relay metrics
var (
	// RelayPublishedTotal counts relayed events by sink and result (success, failed, dropped)
	RelayPublishedTotal CounterVec = noopCounterVec{}

	// RelayQueueDepth tracks events waiting in a relay queue by sink
	RelayQueueDepth GaugeVec = noopGaugeVec{}
)

func initMetrics() {
	EventStreamsOpen = NewGauge(
		"event_streams_open",
		"Number of open map event streams",
	)
	EventStreamFailuresTotal = NewCounter(
		"event_stream_failures_total",
		"Event streams that ended without being closed",
	)
	EventsReceivedTotal = NewCounterVec(
		"events_received_total",
		"Map events received by type",
		[]string{"type"},
	)
	EventsDroppedTotal = NewCounter(
		"events_dropped_total",
		"Map events that matched no listener group",
	)
	SubscriptionRequestsTotal = NewCounterVec(
		"subscription_requests_total",
		"Subscription requests by scope, op and result",
		[]string{"scope", "op", "result"},
	)
	RequestDurationSeconds = NewHistogramWithBuckets(
		"request_duration_seconds",
		"Correlated request round trip in seconds",
		RequestBuckets,
	)
	ListenerGroupsActive = NewGaugeVec(
		"listener_groups_active",
		"Active listener groups by scope",
		[]string{"scope"},
	)
	ListenersRegistered = NewGauge(
		"listeners_registered",
		"Application listeners registered across all groups",
	)
	ListenerPanicsTotal = NewCounter(
		"listener_panics_total",
		"Listener callbacks that panicked",
	)

	PageFetchesTotal = NewCounterVec(
		"page_fetches_total",
		"Page fetches by kind and result",
		[]string{"kind", "result"},
	)
	PageFetchSeconds = NewHistogramVec(
		"page_fetch_seconds",
		"Page fetch latency in seconds",
		[]string{"kind"},
		PageBuckets,
	)
	PageRowsTotal = NewCounterVec(
		"page_rows_total",
		"Rows decoded from pages by kind",
		[]string{"kind"},
	)

	RelayPublishedTotal = NewCounterVec(
		"relay_published_total",
		"Relayed events by sink and result",
		[]string{"sink", "result"},
	)
	RelayQueueDepth = NewGaugeVec(
		"relay_queue_depth",
		"Events waiting in a relay queue",
		[]string{"sink"},
	)
}
