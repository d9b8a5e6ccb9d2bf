package payment

import (
	"context"
	"errors"
	"time"
)

var ErrUpstream = errors.New("payment: gateway failure")

const (
	ConfirmationSucceeded = "succeeded"
	ConfirmationFailed    = "failed"
)

// Intent is an authorization handle obtained from the external processor
// before the buyer completes payment.
type Intent struct {
	Ref          string
	ClientSecret string
}

// Confirmation is the inbound event reporting the outcome of an authorization
// attempt. It arrives either from the client callback or from a webhook-style
// delivery; both paths carry the same shape. Two confirmations with the same
// IntentRef and ExternalID are the same event.
type Confirmation struct {
	IntentRef   string
	ExternalID  string
	Status      string
	ConfirmedAt time.Time
	PayerEmail  string
}

func (c Confirmation) Succeeded() bool { return c.Status == ConfirmationSucceeded }

// Gateway is the port to the external payment authorization service. The ref
// returned by CreateIntent uniquely identifies one authorization attempt.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
}
