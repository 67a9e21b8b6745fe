package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/payments"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Tokens interface {
	handlers.TokenIssuer
	middlewares.TokenVerifier
}

type Mailer interface {
	handlers.CodeMailer
	handlers.ContactMailer
}

// Deps is everything the router wires into handlers. Built once in main.
type Deps struct {
	Logger   *slog.Logger
	Config   config.Config
	Users    handlers.UserStore
	Admins   handlers.AdminReader
	Contacts handlers.ContactStore
	Hasher   handlers.PasswordHasher
	Tokens   Tokens
	Codes    handlers.CodeLifecycle
	Mailer   Mailer
	Gateway  payments.Gateway
	Limiter  middlewares.Limiter

	// Prom and Gatherer are optional; /metrics is only mounted with a Gatherer.
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Checks   map[string]handlers.Check
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Gateway == nil {
		d.Gateway = payments.Disabled{}
	}
	if d.Limiter == nil {
		d.Limiter = middlewares.NewRateLimiter(d.Config.RateLimit.Limit, d.Config.RateLimit.Window)
	}
	if err := handlers.RegisterValidators(); err != nil {
		d.Logger.Error("register_validators_failed", "err", err)
	}

	r := gin.New()

	maxBody := d.Config.MaxBodyKB * 1024
	if maxBody <= 0 {
		maxBody = 64 * 1024
	}

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName(d.Config)))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Logger))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders(d.Config.IsProd()))
	r.Use(middlewares.CORSMiddleware(d.Config.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBody))
	r.Use(middlewares.RequireJSON())

	health := handlers.NewHealthHandler(d.Checks)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	tokens := observedTokens{Tokens: d.Tokens, prom: d.Prom}
	codes := observedCodes{CodeLifecycle: d.Codes, prom: d.Prom}
	cookies := handlers.CookieConfig{Secure: d.Config.IsProd()}

	authMW := middlewares.NewAuthMiddleware(d.Tokens)
	limit := func(route string) gin.HandlerFunc {
		return middlewares.RateLimit(d.Limiter, route, middlewares.KeyByIP, d.Prom)
	}
	// after RequireAuth, so guesses at the old password are counted per account
	limitUser := func(route string) gin.HandlerFunc {
		return middlewares.RateLimit(d.Limiter, route, middlewares.KeyByUserOrIP, d.Prom)
	}

	authH := handlers.NewAuthHandler(d.Users, d.Hasher, tokens, cookies)
	codesH := handlers.NewCodesHandler(d.Users, codes, d.Mailer, d.Hasher, tokens, cookies)
	adminH := handlers.NewAdminHandler(d.Admins, d.Hasher, tokens, cookies)
	usersH := handlers.NewUsersHandler(d.Users)
	contactH := handlers.NewContactHandler(d.Contacts, d.Mailer)
	checkoutH := handlers.NewCheckoutHandler(d.Users, d.Gateway, d.Hasher)

	a := r.Group("/auth")
	{
		a.POST("/signup", limit("signup"), authH.SignUp)
		a.POST("/signin", limit("signin"), authH.SignIn)
		a.POST("/signout", authH.SignOut)
		a.POST("/send-verification-code", limit("send_code"), codesH.SendVerificationCode)
		a.POST("/verify-verification-code", limit("verify_code"), codesH.VerifyVerificationCode)
		a.POST("/send-forgot-password-code", limit("send_code"), codesH.SendForgotPasswordCode)
		a.POST("/verify-forgot-password-code", limit("verify_code"), codesH.VerifyForgotPasswordCode)

		a.PATCH("/change-password", authMW.RequireAuth(), limitUser("change_password"), authH.ChangePassword)
		a.GET("/me", authMW.RequireAuth(), authH.Me)
		a.PATCH("/profile", authMW.RequireAuth(), authH.UpdateProfile)
	}

	r.POST("/admin/signin", limit("admin_signin"), adminH.SignIn)

	adminOnly := []gin.HandlerFunc{authMW.RequireAuth(), authMW.RequireRole(auth.RoleAdmin)}

	users := r.Group("/users", authMW.RequireAuth())
	{
		users.GET("", authMW.RequireRole(auth.RoleAdmin), usersH.List)
		users.GET("/:id", usersH.Get)
		users.PUT("/:id", usersH.Update)
		users.DELETE("/:id", authMW.RequireRole(auth.RoleAdmin), usersH.Delete)
	}
	r.PUT("/admin/users/:id", append(adminOnly, usersH.AdminUpdate)...)

	r.POST("/contact", limit("contact"), contactH.Create)
	r.GET("/contact", append(adminOnly, contactH.List)...)

	s := r.Group("/stripe")
	{
		s.POST("/create-checkout-session", authMW.OptionalAuth(), checkoutH.CreateSession)
		s.POST("/guest-checkout", limit("guest_checkout"), checkoutH.GuestCheckout)
		s.GET("/complete-payment", checkoutH.CompletePayment)
	}

	return r
}

func serviceName(cfg config.Config) string {
	if cfg.OTel.ServiceName != "" {
		return cfg.OTel.ServiceName
	}
	return "accounthub-api"
}

// observedTokens counts issued tokens by role.
type observedTokens struct {
	Tokens
	prom *observability.Prom
}

func (t observedTokens) Issue(id auth.Identity) (string, time.Time, error) {
	token, exp, err := t.Tokens.Issue(id)
	if err == nil {
		role := id.Role
		if role == "" {
			role = auth.RoleUser
		}
		t.prom.ObserveTokenIssued(role)
	}
	return token, exp, err
}

// observedCodes counts issued codes per flow.
type observedCodes struct {
	handlers.CodeLifecycle
	prom *observability.Prom
}

func (c observedCodes) Issue(ctx context.Context, u user.User, flow user.Flow) (string, error) {
	code, err := c.CodeLifecycle.Issue(ctx, u, flow)
	if err == nil {
		c.prom.ObserveCodeIssued(string(flow))
	}
	return code, err
}
