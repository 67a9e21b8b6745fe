package mail

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/contact"
)

var ErrNoRecipient = errors.New("mail: no recipient")

type Message struct {
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Kind    string // metric label, e.g. "verification_code"
}

// Sender delivers one message. Implementations must honour ctx.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	FrontendURL  string
	ContactInbox string
	ProductName  string
}

// Mailer renders account mail and hands it to a Sender.
type Mailer struct {
	sender  Sender
	cfg     Config
	observe func(kind, result string)
}

func NewMailer(sender Sender, cfg Config, observe func(kind, result string)) *Mailer {
	if cfg.ProductName == "" {
		cfg.ProductName = "Accounthub"
	}

	return &Mailer{sender: sender, cfg: cfg, observe: observe}
}

func (m *Mailer) SendVerificationCode(ctx context.Context, to, code string, window time.Duration) error {
	html, err := render("verification_code.html", codeData{
		Product: m.cfg.ProductName,
		Code:    code,
		Minutes: int(window / time.Minute),
	})
	if err != nil {
		return err
	}

	return m.send(ctx, Message{
		To:      []string{to},
		Subject: "Your verification code",
		HTML:    html,
		Kind:    "verification_code",
	})
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, code string, window time.Duration) error {
	q := url.Values{}
	q.Set("code", code)
	q.Set("email", to)

	html, err := render("password_reset.html", codeData{
		Product: m.cfg.ProductName,
		Code:    code,
		Minutes: int(window / time.Minute),
		Link:    m.cfg.FrontendURL + "/sponser-reset-password-verification?" + q.Encode(),
	})
	if err != nil {
		return err
	}

	return m.send(ctx, Message{
		To:      []string{to},
		Subject: "Reset your password",
		HTML:    html,
		Kind:    "password_reset",
	})
}

func (m *Mailer) SendContactNotification(ctx context.Context, s contact.Submission) error {
	if m.cfg.ContactInbox == "" {
		return fmt.Errorf("contact notification: %w", ErrNoRecipient)
	}

	html, err := render("contact_notification.html", s)
	if err != nil {
		return err
	}

	return m.send(ctx, Message{
		To:      []string{m.cfg.ContactInbox},
		ReplyTo: s.Email,
		Subject: fmt.Sprintf("New contact request from %s %s", s.FirstName, s.LastName),
		HTML:    html,
		Kind:    "contact_notification",
	})
}

func (m *Mailer) send(ctx context.Context, msg Message) error {
	err := m.sender.Send(ctx, msg)

	if m.observe != nil {
		result := "ok"
		switch {
		case errors.Is(err, ErrCircuitOpen):
			result = "circuit_open"
		case err != nil:
			result = "error"
		}
		m.observe(msg.Kind, result)
	}

	if err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}

	return nil
}

type codeData struct {
	Product string
	Code    string
	Minutes int
	Link    string
}
