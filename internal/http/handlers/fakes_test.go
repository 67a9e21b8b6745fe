package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/domain/admin"
	"github.com/geocoder89/accounthub/internal/domain/contact"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/payments"
	"github.com/geocoder89/accounthub/internal/verification"
	"github.com/gin-gonic/gin"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)

	if err := handlers.RegisterValidators(); err != nil {
		panic(err)
	}
}

const testSecret = "handler-test-secret"

// Fake implementations of the handler collaborators

type fakeUsers struct {
	createFn         func(ctx context.Context, in user.NewUser) (user.User, error)
	getByIDFn        func(ctx context.Context, id string) (user.User, error)
	getByEmailFn     func(ctx context.Context, email string) (user.User, error)
	listFn           func(ctx context.Context, filter user.ListFilter) ([]user.User, error)
	updatePasswordFn func(ctx context.Context, id, oldHash, newHash string) error
	updateProfileFn  func(ctx context.Context, id string, change user.ProfileChange) (user.User, error)
	applyPaymentFn   func(ctx context.Context, id string, p user.Payment) (user.User, error)
	deleteFn         func(ctx context.Context, id string) error
}

func (f *fakeUsers) Create(ctx context.Context, in user.NewUser) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, in)
	}

	return user.User{ID: "u-1", Email: in.Email, PasswordHash: in.PasswordHash, Profile: in.Profile}, nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}

	return user.User{}, user.ErrNotFound
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}

	return user.User{}, user.ErrNotFound
}

func (f *fakeUsers) List(ctx context.Context, filter user.ListFilter) ([]user.User, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filter)
	}

	return []user.User{}, nil
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, id, oldHash, newHash string) error {
	if f.updatePasswordFn != nil {
		return f.updatePasswordFn(ctx, id, oldHash, newHash)
	}

	return nil
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, id string, change user.ProfileChange) (user.User, error) {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, id, change)
	}

	u := user.User{ID: id}
	change.Apply(&u)
	return u, nil
}

func (f *fakeUsers) ApplyPayment(ctx context.Context, id string, p user.Payment) (user.User, error) {
	if f.applyPaymentFn != nil {
		return f.applyPaymentFn(ctx, id, p)
	}

	return user.User{ID: id}, nil
}

func (f *fakeUsers) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}

	return nil
}

type fakeAdmins struct {
	getByEmailFn func(ctx context.Context, email string) (admin.Admin, error)
}

func (f *fakeAdmins) GetByEmail(ctx context.Context, email string) (admin.Admin, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}

	return admin.Admin{}, admin.ErrNotFound
}

type fakeContacts struct {
	createFn func(ctx context.Context, s contact.Submission) (contact.Submission, error)
	listFn   func(ctx context.Context, limit int) ([]contact.Submission, error)
}

func (f *fakeContacts) Create(ctx context.Context, s contact.Submission) (contact.Submission, error) {
	if f.createFn != nil {
		return f.createFn(ctx, s)
	}

	return s, nil
}

func (f *fakeContacts) List(ctx context.Context, limit int) ([]contact.Submission, error) {
	if f.listFn != nil {
		return f.listFn(ctx, limit)
	}

	return []contact.Submission{}, nil
}

// plainHasher stores "hashed:<plain>" so tests can read digests back.
type plainHasher struct {
	err error
}

func (h plainHasher) Hash(plain string) (string, error) {
	if h.err != nil {
		return "", h.err
	}

	return "hashed:" + plain, nil
}

func (h plainHasher) Verify(plain, digest string) (bool, error) {
	return digest == "hashed:"+plain, nil
}

type fakeCodes struct {
	issueFn  func(ctx context.Context, u user.User, flow user.Flow) (string, error)
	verifyFn func(ctx context.Context, u user.User, flow user.Flow, submitted string, change user.Change) (verification.Outcome, error)
}

func (f *fakeCodes) Window(flow user.Flow) time.Duration {
	if flow == user.FlowPasswordReset {
		return 5 * time.Minute
	}

	return 10 * time.Minute
}

func (f *fakeCodes) Issue(ctx context.Context, u user.User, flow user.Flow) (string, error) {
	if f.issueFn != nil {
		return f.issueFn(ctx, u, flow)
	}

	return "123456", nil
}

func (f *fakeCodes) Verify(ctx context.Context, u user.User, flow user.Flow, submitted string, change user.Change) (verification.Outcome, error) {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, u, flow, submitted, change)
	}

	return verification.Consumed, nil
}

type sentMail struct {
	kind string
	to   string
	code string
}

type fakeMailer struct {
	err  error
	sent []sentMail
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, to, code string, _ time.Duration) error {
	m.sent = append(m.sent, sentMail{kind: "verify", to: to, code: code})
	return m.err
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, code string, _ time.Duration) error {
	m.sent = append(m.sent, sentMail{kind: "reset", to: to, code: code})
	return m.err
}

func (m *fakeMailer) SendContactNotification(_ context.Context, s contact.Submission) error {
	m.sent = append(m.sent, sentMail{kind: "contact", to: s.Email})
	return m.err
}

type fakeGateway struct {
	createFn func(ctx context.Context, req payments.CheckoutRequest) (payments.Session, error)
	getFn    func(ctx context.Context, id string) (payments.Session, error)
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (payments.Session, error) {
	if g.createFn != nil {
		return g.createFn(ctx, req)
	}

	return payments.Session{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (g *fakeGateway) GetSession(ctx context.Context, id string) (payments.Session, error) {
	if g.getFn != nil {
		return g.getFn(ctx, id)
	}

	return payments.Session{}, payments.ErrSessionNotFound
}

type failingIssuer struct{}

func (failingIssuer) Issue(auth.Identity) (string, time.Time, error) {
	return "", time.Time{}, errors.New("signing key unavailable")
}

// small helper function which returns the gin engine to mount one handler per test

func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, h)

	return r
}

// setupAuthedRouter mounts h behind RequireAuth with a manager signed by
// testSecret.
func setupAuthedRouter(method, path string, h ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	mw := middlewares.NewAuthMiddleware(auth.NewManager(testSecret, time.Hour))
	r.Handle(method, path, append([]gin.HandlerFunc{mw.RequireAuth()}, h...)...)

	return r
}

func bearerFor(t *testing.T, id auth.Identity) string {
	t.Helper()

	token, _, err := auth.NewManager(testSecret, time.Hour).Issue(id)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	return "Bearer " + token
}

func doJSON(r http.Handler, method, path, body, authz string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}

	if authz != "" {
		req.Header.Set("Authorization", authz)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

type errorEnvelope struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()

	var env errorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}

	return env
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal response: %v body=%s", err, w.Body.String())
	}

	return out
}
