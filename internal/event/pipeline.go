package event

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the pipeline's Prometheus instrumentation, grouped the
// way the teacher's MetricsRegistry groups per-category counters.
type Metrics struct {
	Accepted  prometheus.Counter
	Deduped   *prometheus.CounterVec
	RateLimited *prometheus.CounterVec
}

// NewMetrics registers the pipeline's counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autodevd", Subsystem: "event_pipeline", Name: "accepted_total",
			Help: "Events accepted by the pipeline and forwarded to the decision engine.",
		}),
		Deduped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autodevd", Subsystem: "event_pipeline", Name: "deduped_total",
			Help: "Events dropped by the deduplication filter, by kind.",
		}, []string{"kind"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autodevd", Subsystem: "event_pipeline", Name: "rate_limited_total",
			Help: "Events dropped by the rate-limit filter, by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Accepted, m.Deduped, m.RateLimited)
	}
	return m
}

// Pipeline runs raw events through dedup → rate-limit → priority → enrich
// and emits accepted events in priority order (FIFO within a priority tier),
// per spec §4.1's "Output" paragraph.
type Pipeline struct {
	dedup       *DedupFilter
	rateLimit   *RateLimitFilter
	fingerprint Fingerprinter
	logger      *slog.Logger
	metrics     *Metrics

	mu    sync.Mutex
	queue priorityQueue
	seq   int64
	notify chan struct{}
}

// Config holds pipeline construction parameters.
type Config struct {
	DedupWindow     time.Duration
	RateLimitPerMin int
	RateLimitWindow time.Duration
	Logger          *slog.Logger
	Metrics         *Metrics
}

// NewPipeline constructs a Pipeline wired with the spec's default filter windows.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rl := NewRateLimitFilter(cfg.RateLimitPerMin, cfg.RateLimitWindow)
	p := &Pipeline{
		dedup:       NewDedupFilter(cfg.DedupWindow),
		rateLimit:   rl,
		fingerprint: NewFingerprinter(),
		logger:      cfg.Logger.With("component", "event_pipeline"),
		metrics:     cfg.Metrics,
		notify:      make(chan struct{}, 1),
	}
	if p.metrics != nil {
		rl.Dropped = func(kind Kind) { p.metrics.RateLimited.WithLabelValues(string(kind)).Inc() }
	}
	return p
}

// Ingest runs a raw event through both filters and, if accepted, enriches
// and enqueues it. Returns true iff the event was accepted.
func (p *Pipeline) Ingest(raw Event) bool {
	now := time.Now()

	if !p.dedup.Accept(raw, now) {
		p.logger.Debug("event deduplicated", "kind", raw.Kind, "path", raw.SourcePath)
		if p.metrics != nil {
			p.metrics.Deduped.WithLabelValues(string(raw.Kind)).Inc()
		}
		return false
	}
	if !p.rateLimit.Accept(raw, now) {
		p.logger.Warn("event rate-limited", "kind", raw.Kind, "path", raw.SourcePath)
		return false
	}

	e := AssignPriority(raw)
	e = Enrich(e, p.fingerprint)

	p.mu.Lock()
	p.enqueueLocked(e)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}

	if p.metrics != nil {
		p.metrics.Accepted.Inc()
	}
	return true
}

// enqueueLocked pushes an already-filtered, enriched event onto the heap.
// Callers must hold p.mu.
func (p *Pipeline) enqueueLocked(e Event) {
	heap.Push(&p.queue, &queueItem{event: e, priority: e.Priority, seq: p.seq})
	p.seq++
}

// Next blocks until an accepted event is available or ctx is cancelled.
func (p *Pipeline) Next(ctx context.Context) (Event, bool) {
	for {
		p.mu.Lock()
		if p.queue.Len() > 0 {
			item := heap.Pop(&p.queue).(*queueItem)
			p.mu.Unlock()
			return item.event, true
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, false
		case <-p.notify:
		}
	}
}

// Len reports the number of events currently queued.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

type queueItem struct {
	event    Event
	priority Priority
	seq      int64
	index    int
}

// priorityQueue orders by priority (descending) then sequence (ascending),
// giving FIFO order within a priority tier as spec requires.
type priorityQueue []*queueItem

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q priorityQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
