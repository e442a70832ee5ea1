package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats aggregates relay counters and process metrics for the stats API.
type Stats struct {
	// --- RELAY METRICS ---
	ConnectionsOpened   uint64 `json:"connections_opened"`
	ConnectionsClosed   uint64 `json:"connections_closed"`
	Joins               uint64 `json:"joins"`
	RoomMessages        uint64 `json:"room_messages"`
	PrivateMessages     uint64 `json:"private_messages"`
	OfflinePrivateDrops uint64 `json:"offline_private_drops"`
	PersistenceFailures uint64 `json:"persistence_failures"`

	// --- SYSTEM METRICS ---
	CPUPercent float64 `json:"cpu_percent"`
	RAMPercent float32 `json:"ram_percent"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	UptimeSec  int64   `json:"uptime_sec"`
}

// Monitor collects relay telemetry. All increments are atomic; a nil
// Monitor is valid and records nothing, so tests can wire the relay
// without one.
type Monitor struct {
	log     *slog.Logger
	started time.Time

	connectionsOpened   uint64
	connectionsClosed   uint64
	joins               uint64
	roomMessages        uint64
	privateMessages     uint64
	offlinePrivateDrops uint64
	persistenceFailures uint64
}

func NewMonitor(log *slog.Logger) *Monitor {
	return &Monitor{log: log, started: time.Now()}
}

func (m *Monitor) ConnectionOpened() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.connectionsOpened, 1)
}

func (m *Monitor) ConnectionClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.connectionsClosed, 1)
}

func (m *Monitor) Joined() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.joins, 1)
}

func (m *Monitor) RoomMessageRouted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.roomMessages, 1)
}

func (m *Monitor) PrivateMessageRouted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.privateMessages, 1)
}

func (m *Monitor) OfflinePrivateDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.offlinePrivateDrops, 1)
}

func (m *Monitor) PersistenceFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.persistenceFailures, 1)
}

// Snapshot returns current counters plus process CPU/RAM figures.
// Metric collection failures are logged and leave the fields at zero; the
// stats endpoint must never fail because gopsutil could not read /proc.
func (m *Monitor) Snapshot() Stats {
	if m == nil {
		return Stats{}
	}
	stats := Stats{
		ConnectionsOpened:   atomic.LoadUint64(&m.connectionsOpened),
		ConnectionsClosed:   atomic.LoadUint64(&m.connectionsClosed),
		Joins:               atomic.LoadUint64(&m.joins),
		RoomMessages:        atomic.LoadUint64(&m.roomMessages),
		PrivateMessages:     atomic.LoadUint64(&m.privateMessages),
		OfflinePrivateDrops: atomic.LoadUint64(&m.offlinePrivateDrops),
		PersistenceFailures: atomic.LoadUint64(&m.persistenceFailures),
		UptimeSec:           int64(time.Since(m.started).Seconds()),
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats.AllocMemMb = mem.Alloc / 1024 / 1024
	stats.NumGC = mem.NumGC

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.log.Debug("Error while retrieving own process", "err", err)
		return stats
	}
	if cpu, err := p.CPUPercent(); err != nil {
		m.log.Debug("Error while finding process cpu usage", "err", err)
	} else {
		stats.CPUPercent = cpu
	}
	if ram, err := p.MemoryPercent(); err != nil {
		m.log.Debug("Error while finding process ram usage", "err", err)
	} else {
		stats.RAMPercent = ram
	}
	return stats
}
