package handlers

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/payments"
	"github.com/gin-gonic/gin"
)

type CheckoutHandler struct {
	users   UserStore
	gateway payments.Gateway
	hasher  PasswordHasher
}

func NewCheckoutHandler(users UserStore, gateway payments.Gateway, hasher PasswordHasher) *CheckoutHandler {
	return &CheckoutHandler{users: users, gateway: gateway, hasher: hasher}
}

type CreateCheckoutRequest struct {
	Plan     string     `json:"plan" binding:"required,min=1,max=200"`
	Price    int64      `json:"price" binding:"required,gt=0"`
	Quantity int64      `json:"quantity" binding:"required,gt=0,lte=1000"`
	Email    user.Email `json:"email" binding:"omitempty,email"`
}

type GuestCheckoutRequest struct {
	Email     user.Email `json:"email" binding:"required,email,max=254"`
	FirstName string     `json:"firstName" binding:"required,min=1,max=100"`
	LastName  string     `json:"lastName" binding:"required,min=1,max=100"`
	Plan      string     `json:"plan" binding:"required,min=1,max=200"`
	Price     int64      `json:"price" binding:"required,gt=0"`
	Quantity  int64      `json:"quantity" binding:"required,gt=0,lte=1000"`
}

type completePaymentQuery struct {
	SessionID string `form:"sessionId" binding:"required,max=255"`
	UserID    string `form:"userId" binding:"omitempty,uuid"`
}

// CreateSession opens a checkout session. A signed-in caller's id travels
// in the session metadata so completion can find them.
func (h *CheckoutHandler) CreateSession(ctx *gin.Context) {
	var req CreateCheckoutRequest

	if !BindJSON(ctx, &req) {
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)
	email := req.Email.String()
	if email == "" {
		email, _ = middlewares.EmailFromContext(ctx)
	}

	h.open(ctx, payments.CheckoutRequest{
		Plan:          req.Plan,
		UnitAmount:    req.Price,
		Quantity:      req.Quantity,
		CustomerEmail: email,
		UserID:        userID,
	}, nil)
}

// GuestCheckout finds or creates an unverified account for the email and
// opens a session on its behalf. New guest accounts get a random password
// nobody knows; the owner sets one through the reset flow.
func (h *CheckoutHandler) GuestCheckout(ctx *gin.Context) {
	var req GuestCheckoutRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, req.Email.String())
	if errors.Is(err, user.ErrNotFound) {
		u, err = h.createGuest(ctx, req)
	}
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "guest_account_failed", "err", err)
		RespondInternal(ctx, "Could not prepare checkout")
		return
	}

	h.open(ctx, payments.CheckoutRequest{
		Plan:          req.Plan,
		UnitAmount:    req.Price,
		Quantity:      req.Quantity,
		CustomerEmail: u.Email,
		UserID:        u.ID,
	}, gin.H{"userId": u.ID})
}

func (h *CheckoutHandler) createGuest(ctx *gin.Context, req GuestCheckoutRequest) (user.User, error) {
	hash, err := h.hasher.Hash(rand.Text())
	if err != nil {
		return user.User{}, err
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	u, err := h.users.Create(cctx, user.NewUser{
		Email:        req.Email.String(),
		PasswordHash: hash,
		Profile:      user.Profile{FirstName: req.FirstName, LastName: req.LastName},
	})
	if errors.Is(err, user.ErrEmailTaken) {
		// lost a race with a concurrent guest checkout for the same email
		return h.users.GetByEmail(cctx, req.Email.String())
	}

	return u, err
}

func (h *CheckoutHandler) open(ctx *gin.Context, req payments.CheckoutRequest, extra gin.H) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	s, err := h.gateway.CreateCheckoutSession(cctx, req)
	if err != nil {
		respondPaymentErr(ctx, err)
		return
	}

	body := gin.H{"id": s.ID, "url": s.URL}
	for k, v := range extra {
		body[k] = v
	}

	ctx.JSON(http.StatusOK, body)
}

// CompletePayment reads the session back from the provider and, when it is
// paid, mirrors the payment onto the user.
func (h *CheckoutHandler) CompletePayment(ctx *gin.Context) {
	var q completePaymentQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		RespondBadRequest(ctx, "Invalid query", parseBindError(err, &q))
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()

	s, err := h.gateway.GetSession(cctx, q.SessionID)
	if err != nil {
		respondPaymentErr(ctx, err)
		return
	}

	// the session's own metadata is authoritative; the query only covers
	// sessions opened without a known account
	userID := s.Metadata["userId"]
	if userID == "" {
		userID = q.UserID
	}

	if s.Paid() && userID != "" {
		if _, err := h.users.ApplyPayment(cctx, userID, s.Payment()); err != nil {
			respondUserErr(ctx, err, "Could not record payment")
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"session":   s,
		"lineItems": s.LineItems,
	})
}

func respondPaymentErr(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, payments.ErrSessionNotFound):
		RespondNotFound(ctx, "Checkout session not found")
	case errors.Is(err, payments.ErrNotConfigured):
		RespondUpstream(ctx, "payments_unavailable", "Payments are not configured.")
	default:
		slog.ErrorContext(ctx.Request.Context(), "payment_provider_failed", "err", err)
		RespondUpstream(ctx, "payment_failed", "Payment provider request failed.")
	}
}
