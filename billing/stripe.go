// Package billing talks to the upstream billing provider. The reconciliation
// engine itself never imports this package; only the cancel worker does.
package billing

import (
	"context"

	"github.com/sirupsen/logrus"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeProvider implements core.BillingProvider.
type StripeProvider struct {
	api *client.API
	log logrus.FieldLogger
}

func NewStripeProvider(apiKey string, log logrus.FieldLogger) *StripeProvider {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeProvider{api: api, log: log}
}

// CancelSubscription cancels immediately, without a final invoice and without
// proration. The subscription being cancelled is redundant next to a lifetime
// purchase, so there is nothing to invoice for.
func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{
		InvoiceNow: stripe.Bool(false),
		Prorate:    stripe.Bool(false),
	}
	params.Context = ctx
	_, err := p.api.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return err
	}
	if p.log != nil {
		p.log.WithField("subscription", subscriptionID).Info("cancelled superseded subscription")
	}
	return nil
}
