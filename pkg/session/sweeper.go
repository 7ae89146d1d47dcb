package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultRetention keeps sessions for a week.
	DefaultRetention = 7 * 24 * time.Hour

	// DefaultSweepSchedule runs the sweep once a day at 03:00.
	DefaultSweepSchedule = "0 3 * * *"
)

// Sweeper periodically purges sessions older than the retention
// window.
type Sweeper struct {
	store     *Store
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	entryID   cron.EntryID
}

// NewSweeper creates a retention sweeper for the store. A zero
// retention or empty schedule falls back to the defaults.
func NewSweeper(store *Store, retention time.Duration, schedule string) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		schedule:  schedule,
	}
}

// Start schedules the sweep and runs one immediately.
func (s *Sweeper) Start() error {
	if s.cron != nil {
		return fmt.Errorf("sweeper is already running")
	}

	c := cron.New()
	entryID, err := c.AddFunc(s.schedule, s.sweep)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron = c
	s.entryID = entryID
	c.Start()

	log.Info().
		Dur("retention", s.retention).
		Str("schedule", s.schedule).
		Msg("Session sweeper started")

	s.sweep()
	return nil
}

// Stop cancels the scheduled sweeps. In-flight sweeps finish first.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron = nil

	log.Info().Msg("Session sweeper stopped")
}

// SweepNow purges expired sessions immediately and reports how many
// were removed.
func (s *Sweeper) SweepNow() (int, error) {
	return s.store.PurgeOlderThan(time.Now().Add(-s.retention))
}

func (s *Sweeper) sweep() {
	if _, err := s.SweepNow(); err != nil {
		log.Error().Err(err).Msg("Session sweep failed")
	}
}
