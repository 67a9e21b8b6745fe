package payments

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
)

var (
	ErrUpstream        = errors.New("payment provider failure")
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrNotConfigured   = errors.New("payments not configured")
)

type CheckoutRequest struct {
	Plan          string
	UnitAmount    int64 // minor units
	Quantity      int64
	CustomerEmail string
	UserID        string
}

type Session struct {
	ID                   string            `json:"id"`
	URL                  string            `json:"url,omitempty"`
	Status               string            `json:"status,omitempty"`
	PaymentStatus        string            `json:"paymentStatus"`
	AmountTotal          int64             `json:"amountTotal"`
	Currency             string            `json:"currency"`
	PaymentIntentID      string            `json:"paymentIntentId,omitempty"`
	PaymentIntentCreated time.Time         `json:"paymentIntentCreated,omitempty"`
	PaymentMethodTypes   []string          `json:"paymentMethodTypes,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	LineItems            []user.LineItem   `json:"lineItems,omitempty"`
}

func (s Session) Paid() bool {
	return s.PaymentStatus == string(user.PaymentPaid)
}

// Payment maps a paid session onto the user's payment mirror.
func (s Session) Payment() user.Payment {
	p := user.Payment{
		StripeSessionID:    s.ID,
		SubscriptionStatus: "active",
		PaymentStatus:      user.PaymentStatus(s.PaymentStatus),
		AmountTotal:        s.AmountTotal,
		Currency:           s.Currency,
		PaymentIntentID:    s.PaymentIntentID,
		PaymentMethodTypes: s.PaymentMethodTypes,
		LineItems:          s.LineItems,
	}

	if len(s.LineItems) > 0 {
		p.SubscriptionPlan = s.LineItems[0].Description
	}

	if !s.PaymentIntentCreated.IsZero() {
		at := s.PaymentIntentCreated.UTC()
		p.LastPaymentDate = &at
		p.PaymentDate = &at
	}

	return p
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
}

// Disabled is used when no provider key is configured.
type Disabled struct{}

func (Disabled) CreateCheckoutSession(context.Context, CheckoutRequest) (Session, error) {
	return Session{}, ErrNotConfigured
}

func (Disabled) GetSession(context.Context, string) (Session, error) {
	return Session{}, ErrNotConfigured
}
