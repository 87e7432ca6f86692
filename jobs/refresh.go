package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/subkit/core"
)

const (
	defaultRefreshWindow = 7 * 24 * time.Hour
	defaultRefreshBatch  = 100
)

// RefreshSweep re-reconciles profiles whose last check is older than Window.
// Reconcile is idempotent, so the sweep needs no coordination with the
// request-driven and webhook-driven callers it races against.
type RefreshSweep struct {
	Engine   *core.Engine
	Profiles core.StaleProfileLister
	Log      logrus.FieldLogger

	// Window is how stale a profile may get before the sweep picks it up.
	Window time.Duration
	// Batch caps how many profiles one run touches.
	Batch int
}

// Register adds the sweep to a cron runner under the given spec.
func (s *RefreshSweep) Register(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, s.Run)
}

// Run performs one sweep. Per-profile failures are logged and skipped; one
// broken profile must not stall the rest of the batch.
func (s *RefreshSweep) Run() {
	ctx := context.Background()

	window := s.Window
	if window <= 0 {
		window = defaultRefreshWindow
	}
	batch := s.Batch
	if batch <= 0 {
		batch = defaultRefreshBatch
	}

	ids, err := s.Profiles.StaleProfiles(ctx, time.Now().Add(-window), batch)
	if err != nil {
		if s.Log != nil {
			s.Log.WithError(err).Error("listing stale profiles failed")
		}
		return
	}

	var failed int
	for _, id := range ids {
		if _, err := s.Engine.Reconcile(ctx, id); err != nil {
			failed++
			if s.Log != nil {
				s.Log.WithError(err).WithField("user_id", id).Warn("scheduled reconcile failed")
			}
		}
	}
	if s.Log != nil && len(ids) > 0 {
		s.Log.WithFields(logrus.Fields{"swept": len(ids), "failed": failed}).Info("refresh sweep finished")
	}
}
