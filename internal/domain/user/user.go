package user

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already in use")
	ErrCodeNotPending = errors.New("code no longer pending")
	ErrStaleWrite     = errors.New("user changed concurrently")
)

// Flow names one of the two code lifecycles a user can be in.
type Flow string

const (
	FlowEmailVerify   Flow = "email-verify"
	FlowPasswordReset Flow = "password-reset"
)

// PendingCode is the stored form of an outstanding code: keyed hash plus
// issue time. Both fields are written and cleared together.
type PendingCode struct {
	Hash     string    `json:"-" bson:"hash"`
	IssuedAt time.Time `json:"-" bson:"issuedAt"`
}

type Profile struct {
	FirstName      string `json:"firstName" bson:"firstName"`
	LastName       string `json:"lastName" bson:"lastName"`
	CompanyName    string `json:"companyName,omitempty" bson:"companyName,omitempty"`
	ContactName    string `json:"contactName,omitempty" bson:"contactName,omitempty"`
	Title          string `json:"title,omitempty" bson:"title,omitempty"`
	Division       string `json:"division,omitempty" bson:"division,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty" bson:"phoneNumber,omitempty"`
	CompanyWebsite string `json:"companyWebsite,omitempty" bson:"companyWebsite,omitempty"`
	HowDidYouHear  string `json:"howDidYouHear,omitempty" bson:"howDidYouHear,omitempty"`
}

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
)

type LineItem struct {
	Description string `json:"description" bson:"description"`
	PriceID     string `json:"priceId,omitempty" bson:"priceId,omitempty"`
	Quantity    int64  `json:"quantity" bson:"quantity"`
	AmountTotal int64  `json:"amountTotal" bson:"amountTotal"`
	Currency    string `json:"currency" bson:"currency"`
}

// Payment mirrors the last completed checkout. Nothing in the account
// lifecycle reads it.
type Payment struct {
	StripeSessionID    string        `json:"stripeSessionId,omitempty" bson:"stripeSessionId,omitempty"`
	SubscriptionPlan   string        `json:"subscriptionPlan,omitempty" bson:"subscriptionPlan,omitempty"`
	SubscriptionStatus string        `json:"subscriptionStatus,omitempty" bson:"subscriptionStatus,omitempty"`
	LastPaymentDate    *time.Time    `json:"lastPaymentDate,omitempty" bson:"lastPaymentDate,omitempty"`
	PaymentStatus      PaymentStatus `json:"paymentStatus" bson:"paymentStatus"`
	AmountTotal        int64         `json:"amountTotal,omitempty" bson:"amountTotal,omitempty"`
	Currency           string        `json:"currency,omitempty" bson:"currency,omitempty"`
	PaymentIntentID    string        `json:"paymentIntentId,omitempty" bson:"paymentIntentId,omitempty"`
	PaymentMethodTypes []string      `json:"paymentMethodTypes,omitempty" bson:"paymentMethodTypes,omitempty"`
	PaymentDate        *time.Time    `json:"paymentDate,omitempty" bson:"paymentDate,omitempty"`
	LineItems          []LineItem    `json:"lineItems,omitempty" bson:"lineItems,omitempty"`
}

type User struct {
	ID                 string       `json:"id" bson:"_id"`
	Email              string       `json:"email" bson:"email"`
	PasswordHash       string       `json:"-" bson:"passwordHash"` // never expose hash in JSON
	Verified           bool         `json:"verified" bson:"verified"`
	VerificationCode   *PendingCode `json:"-" bson:"verificationCode,omitempty"`
	ForgotPasswordCode *PendingCode `json:"-" bson:"forgotPasswordCode,omitempty"`

	Profile `bson:",inline"`
	Payment `bson:",inline"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Pending returns the outstanding code for flow, or nil.
func (u User) Pending(flow Flow) *PendingCode {
	switch flow {
	case FlowEmailVerify:
		return u.VerificationCode
	case FlowPasswordReset:
		return u.ForgotPasswordCode
	default:
		return nil
	}
}

type NewUser struct {
	Email        string
	PasswordHash string
	Verified     bool
	Profile      Profile
}

// Change is applied in the same write that consumes a pending code.
type Change struct {
	Verified     *bool
	PasswordHash *string
}

// ProfileChange is a partial update; nil fields are left alone.
type ProfileChange struct {
	Email          *string
	FirstName      *string
	LastName       *string
	CompanyName    *string
	ContactName    *string
	Title          *string
	Division       *string
	PhoneNumber    *string
	CompanyWebsite *string
	HowDidYouHear  *string
	Verified       *bool
}

// Apply copies every non-nil field onto u.
func (c ProfileChange) Apply(u *User) {
	setString(&u.Email, c.Email)
	setString(&u.FirstName, c.FirstName)
	setString(&u.LastName, c.LastName)
	setString(&u.CompanyName, c.CompanyName)
	setString(&u.ContactName, c.ContactName)
	setString(&u.Title, c.Title)
	setString(&u.Division, c.Division)
	setString(&u.PhoneNumber, c.PhoneNumber)
	setString(&u.CompanyWebsite, c.CompanyWebsite)
	setString(&u.HowDidYouHear, c.HowDidYouHear)

	if c.Verified != nil {
		u.Verified = *c.Verified
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

type ListFilter struct {
	Limit          int
	AfterCreatedAt time.Time
	AfterID        string
}

// NormalizeEmail lowercases and trims an address. Every write and lookup
// goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
