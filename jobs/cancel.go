// Package jobs holds the engine's background work: the queue-backed
// cancellation applier and the scheduled refresh sweep.
package jobs

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/subkit/core"
	"github.com/open-rails/subkit/entitlements"
)

// CancelSubscriptionArgs carries one cancellation intent into the queue.
type CancelSubscriptionArgs struct {
	CustomerRef    string `json:"customer_ref"`
	SubscriptionID string `json:"subscription_id"`
}

func (CancelSubscriptionArgs) Kind() string { return "cancel_subscription" }

// InsertOpts dedupes by args so racing reconciliations for the same user
// enqueue the cancel once.
func (CancelSubscriptionArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 5,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// CancelWorker executes cancellation intents against the billing provider.
type CancelWorker struct {
	river.WorkerDefaults[CancelSubscriptionArgs]

	Provider core.BillingProvider
	Log      logrus.FieldLogger
}

func (w *CancelWorker) Work(ctx context.Context, job *river.Job[CancelSubscriptionArgs]) error {
	if err := w.Provider.CancelSubscription(ctx, job.Args.SubscriptionID); err != nil {
		if w.Log != nil {
			w.Log.WithError(err).WithField("subscription", job.Args.SubscriptionID).
				Warn("cancel subscription attempt failed")
		}
		return err
	}
	return nil
}

// Enqueuer implements core.CancelApplier by inserting a queue job. The engine
// treats the intent as fire-and-forget; retries live in the queue, not in the
// reconciliation call.
type Enqueuer struct {
	Client *river.Client[pgx.Tx]
}

func (e *Enqueuer) Apply(ctx context.Context, intent entitlements.CancelIntent) error {
	_, err := e.Client.Insert(ctx, CancelSubscriptionArgs{
		CustomerRef:    intent.CustomerRef,
		SubscriptionID: intent.SubscriptionID,
	}, nil)
	return err
}

// NewCancelClient builds a river client with the cancel worker registered.
// Callers start and stop it alongside their process.
func NewCancelClient(pool *pgxpool.Pool, provider core.BillingProvider, log logrus.FieldLogger) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, &CancelWorker{Provider: provider, Log: log}); err != nil {
		return nil, err
	}
	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
}
