// Package scheduler runs the periodic maintenance jobs of the assistant.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/leecheenbao/tripeak-b2b/internal/logger"
)

// ConversationReaper resets conversations stuck in a waiting state since
// before the cutoff and reports how many were reset.
type ConversationReaper interface {
	ResetStaleConversations(ctx context.Context, olderThan time.Time) (int64, error)
}

// Scheduler periodically resets abandoned clarification dialogs so a user
// who walked away mid-question comes back to a fresh conversation.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	reaper     ConversationReaper
	staleAfter time.Duration
	schedule   string
	log        zerolog.Logger
}

// New creates a scheduler that runs the reaper on the given cron schedule.
// Waiting conversations untouched for staleAfter are reset to idle.
func New(reaper ConversationReaper, schedule string, staleAfter time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		ctx:        ctx,
		cancel:     cancel,
		reaper:     reaper,
		staleAfter: staleAfter,
		schedule:   schedule,
		log:        logger.Component("scheduler"),
	}
}

// Start registers the reaper job and begins the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.reap)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Dur("stale_after", s.staleAfter).Msg("scheduler started")
	return nil
}

func (s *Scheduler) reap() {
	cutoff := time.Now().UTC().Add(-s.staleAfter)
	n, err := s.reaper.ResetStaleConversations(s.ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("stale conversation reset failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("reset", n).Msg("stale waiting conversations reset to idle")
	}
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.log.Info().Msg("scheduler stopped")
}
