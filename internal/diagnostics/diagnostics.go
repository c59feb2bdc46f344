// Package diagnostics periodically samples the running process's own
// CPU and memory footprint and records it as a Datum, so a long run's
// resource usage can be inspected from the same output tables as the
// simulated scenario (grounded on the teacher's gopsutil-backed system
// handlers, internal/server/system_handlers.go).
package diagnostics

import (
	"os"
	"time"

	"github.com/aristath/simkernel/internal/recorder"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Sampler periodically records a "Diagnostics" Datum row with the
// process's CPU percent and RSS, on a wall-clock ticker independent of
// the simulation's own discrete time step.
type Sampler struct {
	rec      *recorder.Recorder
	interval time.Duration
	proc     *process.Process
	log      zerolog.Logger
	stop     chan struct{}
}

// New constructs a Sampler for the current process.
func New(rec *recorder.Recorder, interval time.Duration, log zerolog.Logger) (*Sampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Sampler{
		rec:      rec,
		interval: interval,
		proc:     p,
		log:      log.With().Str("component", "diagnostics").Logger(),
		stop:     make(chan struct{}),
	}, nil
}

// Start runs the sampling loop in a goroutine until Stop is called.
func (s *Sampler) Start() {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.sampleOnce()
			}
		}
	}()
}

// Stop halts the sampling loop.
func (s *Sampler) Stop() {
	close(s.stop)
}

func (s *Sampler) sampleOnce() {
	cpuPct, err := s.proc.CPUPercent()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to sample process cpu percent")
		return
	}
	memInfo, err := s.proc.MemoryInfo()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to sample process memory info")
		return
	}
	sysMem, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to sample system memory")
		return
	}
	cpuCounts, _ := cpu.Counts(true)

	s.rec.NewDatum("Diagnostics").
		AddVal("Timestamp", time.Now().UTC().Format(time.RFC3339)).
		AddVal("ProcessCPUPercent", cpuPct).
		AddVal("ProcessRSSBytes", int64(memInfo.RSS)).
		AddVal("SystemMemUsedPercent", sysMem.UsedPercent).
		AddVal("LogicalCPUs", cpuCounts).
		Record()
}
