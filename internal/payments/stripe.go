package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type StripeConfig struct {
	SecretKey   string
	Currency    string
	FrontendURL string
}

type StripeGateway struct {
	api *client.API
	cfg StripeConfig
}

func NewStripeGateway(cfg StripeConfig, backends *stripe.Backends) *StripeGateway {
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	return &StripeGateway{api: api, cfg: cfg}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error) {
	returnURL := g.cfg.FrontendURL + "/order-confirmation?session_id={CHECKOUT_SESSION_ID}"

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.cfg.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Plan),
					},
					UnitAmount: stripe.Int64(req.UnitAmount),
				},
				Quantity: stripe.Int64(req.Quantity),
			},
		},
		SuccessURL: stripe.String(returnURL),
		CancelURL:  stripe.String(returnURL),
	}
	params.Context = ctx

	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.UserID != "" {
		params.ClientReferenceID = stripe.String(req.UserID)
		params.AddMetadata("userId", req.UserID)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, mapStripeErr(err)
	}

	return fromStripe(s, nil), nil
}

func (g *StripeGateway) GetSession(ctx context.Context, id string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return Session{}, mapStripeErr(err)
	}

	listParams := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(id)}
	listParams.Context = ctx

	var items []user.LineItem
	iter := g.api.CheckoutSessions.ListLineItems(listParams)
	for iter.Next() {
		li := iter.LineItem()

		item := user.LineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			AmountTotal: li.AmountTotal,
			Currency:    string(li.Currency),
		}
		if li.Price != nil {
			item.PriceID = li.Price.ID
		}
		items = append(items, item)
	}
	if err := iter.Err(); err != nil {
		return Session{}, mapStripeErr(err)
	}

	return fromStripe(s, items), nil
}

func fromStripe(s *stripe.CheckoutSession, items []user.LineItem) Session {
	out := Session{
		ID:                 s.ID,
		URL:                s.URL,
		Status:             string(s.Status),
		PaymentStatus:      string(s.PaymentStatus),
		AmountTotal:        s.AmountTotal,
		Currency:           string(s.Currency),
		PaymentMethodTypes: s.PaymentMethodTypes,
		Metadata:           s.Metadata,
		LineItems:          items,
	}

	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
		if s.PaymentIntent.Created > 0 {
			out.PaymentIntentCreated = time.Unix(s.PaymentIntent.Created, 0).UTC()
		}
	}

	return out
}

func mapStripeErr(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, se.Msg)
	}

	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
