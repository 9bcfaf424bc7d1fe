// Package selfmetrics implements C7: the exporter's own process gauges
// (CPU percent, resident memory, start time), each sampled through gopsutil
// rather than /proc parsing by hand.
package selfmetrics

import (
	"os"
	"time"

	"github.com/cuemby/droxporter/pkg/log"
	"github.com/cuemby/droxporter/pkg/metrics"
	"github.com/shirou/gopsutil/v3/process"
)

// Toggles gates which self-agent gauges get sampled, per spec.md's
// AgentMetricsType set.
type Toggles struct {
	CPU    bool
	Memory bool
}

// Agent samples this process's own resource usage into the registry.
type Agent struct {
	proc    *process.Process
	vectors *metrics.Vectors
	toggles Toggles
}

// New builds an Agent bound to the current process and records
// self_start_time_seconds immediately: start time is reported unconditionally,
// never gated by a toggle.
func New(vectors *metrics.Vectors, toggles Toggles, startUnix int64) (*Agent, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	vectors.SelfStartTimeSeconds.Set(float64(startUnix))
	return &Agent{proc: proc, vectors: vectors, toggles: toggles}, nil
}

// Sample runs one self-metrics pass. A gopsutil read failure is logged and
// that gauge's update is skipped; self metrics never fail a scheduler pass.
func (a *Agent) Sample() {
	logger := log.WithComponent("selfmetrics")

	if a.toggles.CPU {
		pct, err := a.proc.CPUPercent()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to sample process cpu percent")
		} else {
			a.vectors.SelfCPUUsagePercents.Set(pct)
		}
	}

	if a.toggles.Memory {
		info, err := a.proc.MemoryInfo()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to sample process memory")
		} else if info != nil {
			a.vectors.SelfMemoryUsage.Set(float64(info.RSS))
		}
	}
}

// StartUnix returns the current UNIX time; cmd/ calls this once at startup
// and passes the result into New.
func StartUnix() int64 {
	return time.Now().Unix()
}
