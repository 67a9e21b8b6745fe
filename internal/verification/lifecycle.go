package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/security"
)

var (
	ErrAlreadyVerified = errors.New("user already verified")
	ErrUnknownFlow     = errors.New("unknown verification flow")
)

// Store persists pending codes. ConsumeCode must clear the code only if the
// stored hash still equals hash, and apply change in the same write.
type Store interface {
	SaveCode(ctx context.Context, userID string, flow user.Flow, code user.PendingCode) error
	ConsumeCode(ctx context.Context, userID string, flow user.Flow, hash string, change user.Change) error
}

type Policy struct {
	Window time.Duration
	Digits int
}

func DefaultPolicies() map[user.Flow]Policy {
	return map[user.Flow]Policy{
		user.FlowEmailVerify:   {Window: 10 * time.Minute, Digits: 6},
		user.FlowPasswordReset: {Window: 5 * time.Minute, Digits: 6},
	}
}

type Lifecycle struct {
	store    Store
	hasher   *security.KeyedHasher
	policies map[user.Flow]Policy
	now      func() time.Time
	random   io.Reader
	observe  func(flow user.Flow, outcome Outcome)
}

type Option func(*Lifecycle)

func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

func WithRandom(r io.Reader) Option {
	return func(l *Lifecycle) { l.random = r }
}

func WithPolicy(flow user.Flow, p Policy) Option {
	return func(l *Lifecycle) { l.policies[flow] = p }
}

// WithObserver registers a hook called once per Verify outcome.
func WithObserver(fn func(flow user.Flow, outcome Outcome)) Option {
	return func(l *Lifecycle) { l.observe = fn }
}

func New(store Store, hasher *security.KeyedHasher, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:    store,
		hasher:   hasher,
		policies: DefaultPolicies(),
		now:      time.Now,
		random:   rand.Reader,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Lifecycle) Window(flow user.Flow) time.Duration {
	return l.policies[flow].Window
}

// Issue generates a fresh code for flow, stores its keyed hash and returns
// the plaintext for delivery. Any code already pending for the flow is
// overwritten.
func (l *Lifecycle) Issue(ctx context.Context, u user.User, flow user.Flow) (string, error) {
	policy, ok := l.policies[flow]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}

	if flow == user.FlowEmailVerify && u.Verified {
		return "", ErrAlreadyVerified
	}

	code, err := l.generate(policy.Digits)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	pending := user.PendingCode{
		Hash:     l.hasher.Sum(code),
		IssuedAt: l.now().UTC(),
	}

	if err := l.store.SaveCode(ctx, u.ID, flow, pending); err != nil {
		return "", fmt.Errorf("save %s code: %w", flow, err)
	}

	return code, nil
}

// Verify checks submitted against the code pending on u for flow. u must be
// freshly read; the final write is conditional on the hash it carries.
func (l *Lifecycle) Verify(ctx context.Context, u user.User, flow user.Flow, submitted string, change user.Change) (Outcome, error) {
	outcome, err := l.verify(ctx, u, flow, submitted, change)
	if err == nil && l.observe != nil {
		l.observe(flow, outcome)
	}

	return outcome, err
}

func (l *Lifecycle) verify(ctx context.Context, u user.User, flow user.Flow, submitted string, change user.Change) (Outcome, error) {
	policy, ok := l.policies[flow]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}

	if flow == user.FlowEmailVerify && u.Verified {
		return 0, ErrAlreadyVerified
	}

	pending := u.Pending(flow)
	if pending == nil || pending.Hash == "" {
		return NoneOutstanding, nil
	}

	if l.now().Sub(pending.IssuedAt) > policy.Window {
		return Expired, nil
	}

	if !l.hasher.Equal(l.hasher.Sum(strings.TrimSpace(submitted)), pending.Hash) {
		return Mismatch, nil
	}

	if flow == user.FlowEmailVerify {
		verified := true
		change.Verified = &verified
	}

	err := l.store.ConsumeCode(ctx, u.ID, flow, pending.Hash, change)
	if err != nil {
		if errors.Is(err, user.ErrCodeNotPending) {
			return NoneOutstanding, nil
		}
		return 0, fmt.Errorf("consume %s code: %w", flow, err)
	}

	return Consumed, nil
}

func (l *Lifecycle) generate(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("invalid code width %d", digits)
	}

	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)

	n, err := rand.Int(l.random, upper)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
