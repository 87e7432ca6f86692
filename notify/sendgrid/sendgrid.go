// Package sendgridnotify dispatches entitlement notifications through
// SendGrid dynamic templates.
package sendgridnotify

import (
	"context"
	"fmt"
	"time"

	sendgridgo "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/subkit/core"
	"github.com/open-rails/subkit/entitlements"
)

// Notifier implements core.Notifier against the SendGrid v3 API. Each engine
// template id maps to a provider-side dynamic template; the structured data
// travels as dynamic template data and all rendering happens provider-side.
type Notifier struct {
	client     *sendgridgo.Client
	sender     string
	senderName string
	templates  map[entitlements.TemplateID]string
	log        logrus.FieldLogger
}

func New(apiKey, sender, senderName string, templates map[entitlements.TemplateID]string, log logrus.FieldLogger) *Notifier {
	return &Notifier{
		client:     sendgridgo.NewSendClient(apiKey),
		sender:     sender,
		senderName: senderName,
		templates:  templates,
		log:        log,
	}
}

func (n *Notifier) Send(ctx context.Context, msg core.Notification) error {
	providerID, ok := n.templates[msg.Template]
	if !ok {
		return fmt.Errorf("no provider template configured for %q", msg.Template)
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(n.senderName, n.sender))
	m.SetTemplateID(providerID)

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.FirstName, msg.Email))
	p.SetDynamicTemplateData("first_name", msg.FirstName)
	p.SetDynamicTemplateData("previous_tier", msg.PreviousTier.String())
	p.SetDynamicTemplateData("new_tier", msg.NewTier.String())
	if msg.ExpiresAt != nil {
		p.SetDynamicTemplateData("expires_at", msg.ExpiresAt.Format(time.RFC3339))
	}
	if msg.TrialExpiresAt != nil {
		p.SetDynamicTemplateData("trial_expires_at", msg.TrialExpiresAt.Format(time.RFC3339))
	}
	m.AddPersonalizations(p)

	resp, err := n.client.SendWithContext(ctx, m)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if n.log != nil {
			n.log.WithFields(logrus.Fields{
				"status":   resp.StatusCode,
				"template": msg.Template,
			}).Error("sendgrid rejected notification")
		}
		return fmt.Errorf("sendgrid status %d", resp.StatusCode)
	}
	return nil
}
