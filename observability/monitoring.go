// Package observability aggregates runtime metrics for the health
// endpoint and the inspect tool. Counters are atomic; snapshots are
// computed on demand.
package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats is the point-in-time view served by /healthz.
type Stats struct {
	Connections        int     `json:"connections"`
	RoomsActive        int     `json:"rooms_active"`
	EventsBroadcast    uint64  `json:"events_broadcast"`
	EventsDropped      uint64  `json:"events_dropped"`
	ReactionsProcessed uint64  `json:"reactions_processed"`
	CommentsCreated    uint64  `json:"comments_created"`
	BroadcastAvgMs     float64 `json:"broadcast_avg_ms"`
	ReactionAvgMs      float64 `json:"reaction_avg_ms"`

	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	PidStatus  string  `json:"pid_status"`
	UptimeSec  float64 `json:"uptime_sec"`
}

type movingAverage struct {
	mu    sync.Mutex
	sum   float64
	count uint64
}

func (a *movingAverage) observe(ms float64) {
	a.mu.Lock()
	a.sum += ms
	a.count++
	a.mu.Unlock()
}

func (a *movingAverage) value() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// Monitoring collects engine telemetry in real time.
type Monitoring struct {
	log       *slog.Logger
	startedAt time.Time
	self      *process.Process

	eventsBroadcast    uint64
	eventsDropped      uint64
	reactionsProcessed uint64
	commentsCreated    uint64

	broadcastLatency movingAverage
	reactionLatency  movingAverage
}

func NewMonitoring(log *slog.Logger) *Monitoring {
	// Self-inspection failure is not fatal, the process metrics just
	// stay blank.
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Self process handle unavailable", "err", err)
		self = nil
	}
	return &Monitoring{log: log, startedAt: time.Now(), self: self}
}

func (m *Monitoring) IncrEventsBroadcast(n uint64) { atomic.AddUint64(&m.eventsBroadcast, n) }
func (m *Monitoring) IncrEventsDropped()           { atomic.AddUint64(&m.eventsDropped, 1) }
func (m *Monitoring) IncrReactionsProcessed()      { atomic.AddUint64(&m.reactionsProcessed, 1) }
func (m *Monitoring) IncrCommentsCreated()         { atomic.AddUint64(&m.commentsCreated, 1) }

// ObserveBroadcast records one fan-out duration.
func (m *Monitoring) ObserveBroadcast(d time.Duration) {
	m.broadcastLatency.observe(float64(d.Microseconds()) / 1000.0)
}

// ObserveReaction records one optimistic-pipeline duration.
func (m *Monitoring) ObserveReaction(ms float64) {
	m.reactionLatency.observe(ms)
}

// Snapshot assembles the health view. Connection and room counts come
// from the caller since the registry owns them.
func (m *Monitoring) Snapshot(connections, rooms int) Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := Stats{
		Connections:        connections,
		RoomsActive:        rooms,
		EventsBroadcast:    atomic.LoadUint64(&m.eventsBroadcast),
		EventsDropped:      atomic.LoadUint64(&m.eventsDropped),
		ReactionsProcessed: atomic.LoadUint64(&m.reactionsProcessed),
		CommentsCreated:    atomic.LoadUint64(&m.commentsCreated),
		BroadcastAvgMs:     m.broadcastLatency.value(),
		ReactionAvgMs:      m.reactionLatency.value(),
		AllocMemMb:         mem.Alloc / 1024 / 1024,
		NumGC:              mem.NumGC,
		Goroutines:         runtime.NumGoroutine(),
		UptimeSec:          time.Since(m.startedAt).Seconds(),
	}

	if m.self != nil {
		if rss, cpu, status, err := selfStats(m.self); err == nil {
			stats.RSSBytes = rss
			stats.CPUPercent = cpu
			stats.PidStatus = status
		} else {
			m.log.Debug("Failed to collect self stats", "err", err)
		}
	}
	return stats
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
