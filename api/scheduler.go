/*
scheduler.go - Daily selection trigger

PURPOSE:
  Fires the buyer rotation automatically on a cron schedule (default
  11:00 on weekdays) so nobody has to remember to press the button.
  The HTTP endpoint stays available for manual/off-schedule runs.

  A day with no session or no participants is normal (holidays, empty
  office) and is logged at info, not treated as a failure. A session
  already selected by hand is likewise skipped.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/crewlunch/lunchfund/fund"
)

// Scheduler runs the daily buyer selection.
type Scheduler struct {
	store    fund.Store
	rotation *fund.RotationSelector
	cron     *cron.Cron
	spec     string
}

func NewScheduler(store fund.Store, rotation *fund.RotationSelector, spec string) *Scheduler {
	return &Scheduler{
		store:    store,
		rotation: rotation,
		cron:     cron.New(),
		spec:     spec,
	}
}

// Start registers the cron entry and launches the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runDailySelection); err != nil {
		return fmt.Errorf("failed to schedule selection: %w", err)
	}
	s.cron.Start()
	log.WithField("spec", s.spec).Info("selection scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runDailySelection() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	date := time.Now().UTC().Format(fund.DateLayout)
	sess, err := s.store.GetSessionByDate(ctx, date)
	if err != nil {
		log.WithError(err).Error("scheduled selection: failed to load session")
		return
	}
	if sess == nil {
		log.WithField("date", date).Info("scheduled selection: no session today")
		return
	}

	buyers, err := s.rotation.SelectBuyers(ctx, sess.ID)
	switch {
	case err == nil:
		selectionsTotal.Inc()
		log.WithFields(log.Fields{"date": date, "buyers": len(buyers)}).Info("scheduled selection done")
	case errors.Is(err, fund.ErrNoParticipants):
		log.WithField("date", date).Info("scheduled selection: nobody joined")
	case errors.Is(err, fund.ErrInvalidState):
		log.WithField("date", date).Info("scheduled selection: already selected")
	default:
		log.WithError(err).WithField("date", date).Error("scheduled selection failed")
	}
}
