package scanner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/paralela17-sudo/tradepulse-bot/internal/asset"
)

const (
	DefaultInitialDelay = 5 * time.Second
	DefaultInterval     = 60 * time.Second
)

// ScheduleConfig controls the scan cadence.
type ScheduleConfig struct {
	InitialDelay time.Duration
	Interval     time.Duration
}

// Scheduler runs scans on a cadence. A trigger arriving while a scan is in
// progress is dropped, not queued.
type Scheduler struct {
	scanner *Scanner
	assets  func() []asset.Asset
	board   *Board
	sink    Sink
	cfg     ScheduleConfig
	log     zerolog.Logger

	running atomic.Bool
}

// NewScheduler wires a scanner to a board. assets is read on every run so the
// universe can change between scans; sink may be nil.
func NewScheduler(s *Scanner, assets func() []asset.Asset, board *Board, sink Sink, cfg ScheduleConfig, log zerolog.Logger) *Scheduler {
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scheduler{
		scanner: s,
		assets:  assets,
		board:   board,
		sink:    sink,
		cfg:     cfg,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	initial := time.NewTimer(s.cfg.InitialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return
	case <-initial.C:
	}
	s.Trigger(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger runs one scan synchronously. It returns false without scanning when
// another scan holds the guard.
func (s *Scheduler) Trigger(ctx context.Context) (Report, bool) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug().Msg("scan already in progress, trigger dropped")
		return Report{}, false
	}
	defer s.running.Store(false)

	rep := s.scanner.Scan(ctx, s.assets())
	if s.board != nil {
		s.board.Record(rep)
	}
	if s.sink != nil {
		if err := s.sink.Publish(ctx, rep); err != nil {
			s.log.Warn().Err(err).Str("scan_id", rep.ID.String()).Msg("publish report failed")
		}
	}
	return rep, true
}

// Running reports whether a scan currently holds the guard.
func (s *Scheduler) Running() bool { return s.running.Load() }
