package sandbox

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is a point-in-time resource snapshot, spec §3's ResourceUsage.
type Usage struct {
	MemoryBytes    uint64
	CPUTimeMS      uint64
	ThreadCount    int32
	FileHandles    int32
}

// Limits ceiling each Usage counter; a zero field means unlimited.
type Limits struct {
	MaxMemoryBytes uint64
	MaxCPUTimeMS   uint64
	MaxThreads     int32
	MaxFileHandles int32
}

// Exceeds reports whether u violates any non-zero ceiling in l.
func (u Usage) Exceeds(l Limits) bool {
	return (l.MaxMemoryBytes > 0 && u.MemoryBytes > l.MaxMemoryBytes) ||
		(l.MaxCPUTimeMS > 0 && u.CPUTimeMS > l.MaxCPUTimeMS) ||
		(l.MaxThreads > 0 && u.ThreadCount > l.MaxThreads) ||
		(l.MaxFileHandles > 0 && u.FileHandles > l.MaxFileHandles)
}

// Monitor samples process-level resource usage across a module call,
// started on call entry and stopped on call exit, per spec §4.4.
//
// Grounded on `internal/infrastructure/k8s/client.go`'s config-struct +
// constructor idiom; gopsutil is used here instead of client-go because the
// resource being sampled is this process's own usage, not a cluster
// resource — client-go is reserved for the secrets-discovery half of this
// package (secrets.go).
type Monitor struct {
	proc *process.Process

	mu      sync.Mutex
	sampled Usage
}

// NewMonitor returns a Monitor sampling the current OS process. pid lets
// tests substitute a different target.
func NewMonitor(pid int32) (*Monitor, error) {
	if pid == 0 {
		pid = int32(os.Getpid())
	}
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	return &Monitor{proc: p}, nil
}

// Sample records a fresh reading, overwriting the previous one.
func (m *Monitor) Sample() (Usage, error) {
	memInfo, err := m.proc.MemoryInfo()
	if err != nil {
		return Usage{}, err
	}
	times, err := m.proc.Times()
	if err != nil {
		return Usage{}, err
	}
	threads, err := m.proc.NumThreads()
	if err != nil {
		return Usage{}, err
	}
	fds, err := m.proc.NumFDs()
	if err != nil {
		fds = 0
	}

	u := Usage{
		MemoryBytes: memInfo.RSS,
		CPUTimeMS:   uint64((times.User + times.System) * 1000),
		ThreadCount: threads,
		FileHandles: fds,
	}

	m.mu.Lock()
	m.sampled = u
	m.mu.Unlock()
	return u, nil
}

// Last returns the most recently sampled reading without re-sampling.
func (m *Monitor) Last() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sampled
}

// Track starts timing a call; the returned stop function samples once more
// and reports elapsed wall time alongside the fresh Usage reading.
func (m *Monitor) Track() (stop func() (Usage, time.Duration)) {
	start := time.Now()
	return func() (Usage, time.Duration) {
		u, err := m.Sample()
		if err != nil {
			u = m.Last()
		}
		return u, time.Since(start)
	}
}
