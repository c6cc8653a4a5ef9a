package billing

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// MaxWebhookBody bounds the webhook payload read from the request.
const MaxWebhookBody = int64(65536)

// ErrInvalidSignature is returned when a webhook payload does not verify.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifyWebhook checks the Stripe-Signature header and decodes the event.
func VerifyWebhook(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	if secret == "" {
		return stripe.Event{}, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}
