// Package memmon watches available system memory and classifies it into
// coarse pressure levels so caches can shed weight before the process is
// killed.
package memmon

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Level is the current memory pressure classification.
type Level int

const (
	LevelNormal Level = iota
	LevelLow
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelLow:
		return "low"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Sampler reports currently available memory in bytes.
type Sampler func() (uint64, error)

// SystemSampler reads available memory from the OS.
func SystemSampler() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// AvailableBytes is a convenience for sizing budgets at startup. It returns
// 0 when the reading fails.
func AvailableBytes() uint64 {
	avail, err := SystemSampler()
	if err != nil {
		return 0
	}
	return avail
}

// CleanupFunc is invoked when pressure rises into Low or Critical.
type CleanupFunc func(Level)

// Monitor periodically samples available memory and invokes registered
// cleanup callbacks when the pressure level rises. Callbacks fire only on a
// level change, never on every sample, so a steadily low reading does not
// cause a callback storm.
type Monitor struct {
	interval  time.Duration
	lowBytes  uint64
	critBytes uint64
	sampler   Sampler
	logger    *slog.Logger

	mu        sync.Mutex
	level     Level
	callbacks []CleanupFunc
	running   bool
	stopCh    chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the sampling period.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithThresholds sets the Low and Critical boundaries in megabytes of
// available memory.
func WithThresholds(lowMB, criticalMB uint64) Option {
	return func(m *Monitor) {
		if lowMB > 0 {
			m.lowBytes = lowMB << 20
		}
		if criticalMB > 0 {
			m.critBytes = criticalMB << 20
		}
	}
}

// WithSampler replaces the memory reading source.
func WithSampler(s Sampler) Option {
	return func(m *Monitor) {
		if s != nil {
			m.sampler = s
		}
	}
}

// NewMonitor creates a monitor with a 30s period and 100/50 MB thresholds.
func NewMonitor(logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		interval:  30 * time.Second,
		lowBytes:  100 << 20,
		critBytes: 50 << 20,
		sampler:   SystemSampler,
		logger:    logger,
		level:     LevelNormal,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterCleanup adds fn to the callbacks fired on pressure transitions.
// Callbacks run synchronously in registration order.
func (m *Monitor) RegisterCleanup(fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Level returns the last classified pressure level.
func (m *Monitor) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Start begins periodic sampling. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.logger.Info("memory pressure monitor started",
		"interval", m.interval,
		"lowMB", m.lowBytes>>20,
		"criticalMB", m.critBytes>>20,
	)

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				m.poll()
			}
		}
	}()
}

// Stop cancels the sampling timer. Safe to call repeatedly or when not
// running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
	m.logger.Info("memory pressure monitor stopped")
}

// poll takes one sample and fires callbacks if the level changed upward into
// Low or Critical. A sampling failure is logged and counts as Normal for
// this cycle.
func (m *Monitor) poll() {
	avail, err := m.sampler()

	level := LevelNormal
	if err != nil {
		m.logger.Warn("memory sample failed", "error", err)
	} else {
		level = m.classify(avail)
	}

	m.mu.Lock()
	previous := m.level
	if level == previous {
		m.mu.Unlock()
		return
	}
	m.level = level
	callbacks := make([]CleanupFunc, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	m.logger.Info("memory pressure level changed",
		"from", previous, "to", level, "availableMB", avail>>20)

	if level == LevelNormal {
		return
	}

	for i, fn := range callbacks {
		m.invoke(i, fn, level)
	}
}

// invoke runs one cleanup callback, containing a panic so a failing callback
// cannot block the rest.
func (m *Monitor) invoke(i int, fn CleanupFunc, level Level) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("cleanup callback panicked", "index", i, "panic", r)
		}
	}()
	fn(level)
}

func (m *Monitor) classify(avail uint64) Level {
	switch {
	case avail <= m.critBytes:
		return LevelCritical
	case avail <= m.lowBytes:
		return LevelLow
	default:
		return LevelNormal
	}
}
