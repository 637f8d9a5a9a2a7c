package observability

import (
	"context"
	"hobby-relay/contract"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthStats aggregates what /healthz reports.
type HealthStats struct {
	Status     string    `json:"status"`
	Sessions   int       `json:"sessions"`
	Rooms      int       `json:"rooms"`
	Goroutines int       `json:"goroutines"`
	AllocMemMb uint64    `json:"alloc_mem_mb"`
	NumGC      uint32    `json:"num_gc"`
	RssBytes   uint64    `json:"rss_bytes"`
	CPUPercent float64   `json:"cpu_percent"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HealthMonitor refreshes a process health snapshot on a fixed interval.
// It runs as a supervised worker.
type HealthMonitor struct {
	log      *slog.Logger
	registry contract.IRegistry
	proc     *process.Process
	interval time.Duration
	mu       sync.RWMutex
	latest   HealthStats
}

var _ contract.Worker = (*HealthMonitor)(nil)

func NewHealthMonitor(log *slog.Logger, registry contract.IRegistry, interval time.Duration) *HealthMonitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
		proc = nil
	}
	h := &HealthMonitor{log: log, registry: registry, proc: proc, interval: interval}
	h.Refresh()
	return h
}

func (h *HealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("Stopping health monitor")
			return nil
		case <-ticker.C:
			h.Refresh()
		}
	}
}

// Refresh recomputes the snapshot now.
func (h *HealthMonitor) Refresh() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := HealthStats{
		Status:     "ok",
		Sessions:   h.registry.Sessions(),
		Rooms:      h.registry.Rooms(),
		Goroutines: runtime.NumGoroutine(),
		AllocMemMb: m.Alloc / 1024 / 1024,
		NumGC:      m.NumGC,
		UpdatedAt:  time.Now().UTC(),
	}

	if h.proc != nil {
		if memInfo, err := h.proc.MemoryInfo(); err == nil {
			stats.RssBytes = memInfo.RSS
		} else {
			h.log.Debug("Reading rss failed", "error", err)
		}
		if cpu, err := h.proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
	}

	h.mu.Lock()
	h.latest = stats
	h.mu.Unlock()
}

func (h *HealthMonitor) GetLatest() HealthStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}
