package workers

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*StatsWorker)(nil)

// StatsSource exposes the connection counters the stats worker reports.
type StatsSource interface {
	Count() int
	OnlineUsers() []domain.UserID
}

type Stats struct {
	Connections int
	OnlineUsers int
	Goroutines  int
	CPUPercent  float64
	RAMPercent  float32
}

// StatsWorker logs connection and process figures at a fixed interval.
type StatsWorker struct {
	log      *slog.Logger
	source   StatsSource
	interval time.Duration
	pid      int32
}

func NewStatsWorker(log *slog.Logger, source StatsSource, interval time.Duration) *StatsWorker {
	return &StatsWorker{log: log, source: source, interval: interval, pid: int32(os.Getpid())}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping stats")
			return nil
		case <-ticker.C:
			stats := w.Collect()
			w.log.Info("Runtime stats",
				"connections", stats.Connections,
				"online_users", stats.OnlineUsers,
				"goroutines", stats.Goroutines,
				"cpu_percent", stats.CPUPercent,
				"ram_percent", stats.RAMPercent)
		}
	}
}

// Collect reads the current figures. Process figures stay at zero when the
// OS refuses to report them.
func (w *StatsWorker) Collect() Stats {
	stats := Stats{
		Connections: w.source.Count(),
		OnlineUsers: len(w.source.OnlineUsers()),
		Goroutines:  goruntime.NumGoroutine(),
	}
	p, err := process.NewProcess(w.pid)
	if err != nil {
		w.log.Debug("Error while retrieving process", "pid", w.pid, "err", err)
		return stats
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	} else {
		w.log.Debug("Error while finding process cpu usage", "err", err)
	}
	if ram, err := p.MemoryPercent(); err == nil {
		stats.RAMPercent = ram
	} else {
		w.log.Debug("Error while finding process ram usage", "err", err)
	}
	return stats
}
