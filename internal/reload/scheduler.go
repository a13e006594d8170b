package reload

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autodevd/daemon/internal/distlock"
)

// Request is one admission request for the ReloadScheduler, per spec
// §4.5's "Scheduling across modules".
type Request struct {
	ModuleID string
	NewPath  string
	Priority int
	Deadline time.Time
}

// pqItem orders Requests priority-then-deadline: higher Priority first,
// then earlier Deadline first.
type pqItem struct {
	req   Request
	index int
}

type priorityQueue []*pqItem

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].req.Priority != q[j].req.Priority {
		return q[i].req.Priority > q[j].req.Priority
	}
	return q[i].req.Deadline.Before(q[j].req.Deadline)
}
func (q priorityQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}
func (q *priorityQueue) Push(x any) {
	item := x.(*pqItem)
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

// Scheduler admits Requests subject to allow_concurrent_reloads: when
// concurrent reloads are disallowed, requests queue in priority-then-
// deadline order and a distributed lock serializes admission across
// daemon instances sharing Redis; otherwise requests run as soon as
// Dequeue is called, with only the in-process queue ordering them.
type Scheduler struct {
	mu                     sync.Mutex
	queue                  priorityQueue
	allowConcurrentReloads bool
	locks                  *distlock.Manager

	total, succeeded, failed, rolledBack int64
	totalDuration                        time.Duration
	messagesPreserved                    int64
	migrationCount                       int64
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	AllowConcurrentReloads bool
	Locks                  *distlock.Manager // nil disables cross-instance locking
}

// NewScheduler returns an empty Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{allowConcurrentReloads: cfg.AllowConcurrentReloads, locks: cfg.Locks}
	heap.Init(&s.queue)
	return s
}

// Enqueue admits req into the priority queue.
func (s *Scheduler) Enqueue(req Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.queue, &pqItem{req: req})
}

// Dequeue pops the highest-priority, earliest-deadline request, or
// (Request{}, false) if the queue is empty.
func (s *Scheduler) Dequeue() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return Request{}, false
	}
	item := heap.Pop(&s.queue).(*pqItem)
	return item.req, true
}

// Len reports how many requests are currently queued.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// lockKey is shared across instances for a module's reload serialization.
func lockKey(moduleID string) string { return fmt.Sprintf("reload:%s", moduleID) }

// Admit acquires cross-instance admission for moduleID when concurrent
// reloads are disallowed and a lock manager is configured, running fn
// once admitted and releasing afterward. When concurrent reloads are
// allowed, or no lock manager is configured, fn runs unconditionally.
func (s *Scheduler) Admit(ctx context.Context, moduleID string, fn func() *Result) (*Result, error) {
	if s.allowConcurrentReloads || s.locks == nil {
		return fn(), nil
	}

	lock, err := s.locks.Acquire(ctx, lockKey(moduleID), distlock.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("reload: acquire scheduling lock: %w", err)
	}
	if lock == nil {
		return nil, ErrConcurrentReloadDenied
	}
	defer lock.Release(ctx)

	return fn(), nil
}

// Record folds a completed Result into the scheduler's running metrics:
// total/succeeded/failed/rolled-back reloads, mean reload duration,
// messages preserved, migration count, per spec §4.5.
func (s *Scheduler) Record(res *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.totalDuration += res.Duration
	s.messagesPreserved += int64(res.MessagesPreserved)
	if res.MigrationApplied {
		s.migrationCount++
	}
	switch {
	case res.Success:
		s.succeeded++
	case res.RolledBack:
		s.rolledBack++
	default:
		s.failed++
	}
}

// Metrics is a point-in-time snapshot of the scheduler's reload counters.
type Metrics struct {
	Total             int64
	Succeeded         int64
	Failed            int64
	RolledBack        int64
	MeanDuration      time.Duration
	MessagesPreserved int64
	MigrationCount    int64
}

// Metrics returns the current counters.
func (s *Scheduler) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	mean := time.Duration(0)
	if s.total > 0 {
		mean = s.totalDuration / time.Duration(s.total)
	}
	return Metrics{
		Total:             s.total,
		Succeeded:         s.succeeded,
		Failed:            s.failed,
		RolledBack:        s.rolledBack,
		MeanDuration:      mean,
		MessagesPreserved: s.messagesPreserved,
		MigrationCount:    s.migrationCount,
	}
}
