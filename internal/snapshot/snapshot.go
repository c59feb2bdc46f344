// Package snapshot runs a wall-clock cron schedule (distinct from the
// simulation's own discrete time loop) that periodically forces the
// recorder to flush, giving a long run a crash-recovery checkpoint
// cadence independent of how often any single table's dump_count would
// otherwise trigger a flush. Grounded on the teacher's robfig/cron
// wrapper (trader-go/internal/scheduler/scheduler.go).
package snapshot

import (
	"github.com/aristath/simkernel/internal/recorder"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler wraps a cron.Cron driving periodic Recorder.Flush calls.
type Scheduler struct {
	cron *cron.Cron
	rec  *recorder.Recorder
	log  zerolog.Logger
}

// New constructs a Scheduler with no checkpoints registered; each
// AddCheckpoint call supplies a cadence.
func New(rec *recorder.Recorder, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		rec:  rec,
		log:  log.With().Str("component", "snapshot").Logger(),
	}
}

// AddCheckpoint registers spec, a standard 5-field cron expression or a
// descriptor such as "@every 1m", as a checkpoint trigger. Multiple
// schedules may be registered (e.g. a frequent flush plus a daily
// archival rollup handled by a registered S3 backend).
func (s *Scheduler) AddCheckpoint(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.rec.Flush(); err != nil {
			s.log.Error().Err(err).Msg("checkpoint flush failed")
			return
		}
		s.log.Debug().Msg("checkpoint flushed")
	})
	return err
}

// Start begins running registered checkpoints in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("snapshot scheduler started")
}

// Stop waits for any in-flight checkpoint to finish, then halts
// further scheduling.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("snapshot scheduler stopped")
}
