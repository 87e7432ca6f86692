// Package notify provides notification dispatchers. The engine hands them a
// template id plus structured data; rendering is the provider's job.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/open-rails/subkit/core"
)

// LogNotifier writes notifications to the log instead of sending them. It is
// the default in development and a deliberate choice for dry runs.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Send(ctx context.Context, msg core.Notification) error {
	if n.Log == nil {
		return nil
	}
	n.Log.WithFields(logrus.Fields{
		"email":    msg.Email,
		"template": msg.Template,
		"from":     msg.PreviousTier.String(),
		"to":       msg.NewTier.String(),
	}).Info("notification (log only)")
	return nil
}
