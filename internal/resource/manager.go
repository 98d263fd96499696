// Package resource implements the process-wide permit pools bounding
// concurrency across all runs in the process.
package resource

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// StorageType selects the default io_permits count for a volume class.
type StorageType string

const (
	StorageNVMe StorageType = "nvme"
	StorageSSD  StorageType = "ssd"
	StorageHDD  StorageType = "hdd"
	StorageAuto StorageType = "auto"
)

func defaultIOPermits(st StorageType) int {
	switch st {
	case StorageNVMe:
		return 32
	case StorageSSD:
		return 16
	case StorageHDD:
		return 4
	default:
		return 8
	}
}

// Manager is the process-global singleton holding the CPU and IO
// counting semaphores. It is initialised once at startup and is the
// only process-wide mutable state.
type Manager struct {
	cpu chan struct{}
	io  chan struct{}
}

var (
	instance *Manager
	initOnce sync.Once
)

// Init constructs the singleton. Subsequent calls are no-ops; use
// Get to retrieve the instance from anywhere in the process.
func Init(cpuPermits int, storageType StorageType) *Manager {
	initOnce.Do(func() {
		if cpuPermits <= 0 {
			cpuPermits = runtime.NumCPU()
		}
		instance = &Manager{
			cpu: make(chan struct{}, cpuPermits),
			io:  make(chan struct{}, defaultIOPermits(storageType)),
		}
	})
	return instance
}

// Get returns the singleton, initialising it with defaults if Init was
// never called.
func Get() *Manager {
	if instance == nil {
		return Init(runtime.NumCPU(), StorageAuto)
	}
	return instance
}

// AcquireCPU blocks until a CPU permit is available or ctx is done.
func (m *Manager) AcquireCPU(ctx context.Context) (release func(), err error) {
	select {
	case m.cpu <- struct{}{}:
		return func() { <-m.cpu }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire cpu permit: %w", ctx.Err())
	}
}

// AcquireIO blocks until an IO permit is available or ctx is done.
func (m *Manager) AcquireIO(ctx context.Context) (release func(), err error) {
	select {
	case m.io <- struct{}{}:
		return func() { <-m.io }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire io permit: %w", ctx.Err())
	}
}

// CPUCapacity and IOCapacity report the pool sizes, for metrics/health
// reporting.
func (m *Manager) CPUCapacity() int { return cap(m.cpu) }
func (m *Manager) IOCapacity() int  { return cap(m.io) }

// RunSemaphore is the per-run worker-count limiter: independent of the
// global CPU pool, acquired first so a single run cannot starve the
// process-wide permits.
type RunSemaphore struct {
	slots chan struct{}
}

func NewRunSemaphore(workerCount int) *RunSemaphore {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &RunSemaphore{slots: make(chan struct{}, workerCount)}
}

func (rs *RunSemaphore) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case rs.slots <- struct{}{}:
		return func() { <-rs.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire run worker slot: %w", ctx.Err())
	}
}
