package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*HeartbeatWorker)(nil)

// HeartbeatWorker periodically logs the server's own resource usage
// (RSS, CPU, OS status). Operational visibility only.
type HeartbeatWorker struct {
	log      *slog.Logger
	interval time.Duration
	stats    func() map[string]any
}

// NewHeartbeatWorker takes an optional stats provider for runtime counters
// (presence size, room count) merged into each heartbeat line.
func NewHeartbeatWorker(log *slog.Logger, interval time.Duration, stats func() map[string]any) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, interval: interval, stats: stats}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			attrs := []any{"ram_bytes", rss, "cpu_percent", cpu, "status", status}
			if w.stats != nil {
				for k, v := range w.stats() {
					attrs = append(attrs, k, v)
				}
			}
			w.log.Info("heartbeat", attrs...)
		}
	}
}

// selfStats retrieves technical metrics (memory, CPU, OS status) for the
// given process.
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
