package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/accounthub/internal/auth"
	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/db"
	"github.com/geocoder89/accounthub/internal/domain/user"
	httpx "github.com/geocoder89/accounthub/internal/http"
	"github.com/geocoder89/accounthub/internal/http/middlewares"
	"github.com/geocoder89/accounthub/internal/mail"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/payments"
	"github.com/geocoder89/accounthub/internal/redisclient"
	"github.com/geocoder89/accounthub/internal/security"
	"github.com/geocoder89/accounthub/internal/verification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		Enabled:     cfg.OTel.Enabled,
		ServiceName: cfg.OTel.ServiceName,
		Endpoint:    cfg.OTel.Endpoint,
		Env:         cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		sctx, cancel := config.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	st, err := openStores(ctx, cfg, prom, log)
	if err != nil {
		return err
	}
	defer st.close()

	hasher := security.NewHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewManager(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)

	codes := verification.New(st.users, security.NewKeyedHasher(cfg.Auth.CodeSecret),
		verification.WithObserver(func(flow user.Flow, o verification.Outcome) {
			prom.ObserveVerification(string(flow), o.String())
		}),
	)

	mailer := mail.NewMailer(newSender(cfg, log), mail.Config{
		FrontendURL:  cfg.FrontendURL,
		ContactInbox: cfg.Mail.ContactInbox,
		ProductName:  cfg.Mail.FromName,
	}, prom.ObserveMail)

	var gateway payments.Gateway = payments.Disabled{}
	if cfg.Stripe.SecretKey != "" {
		gateway = payments.NewStripeGateway(payments.StripeConfig{
			SecretKey:   cfg.Stripe.SecretKey,
			Currency:    cfg.Stripe.Currency,
			FrontendURL: cfg.FrontendURL,
		}, nil)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set; checkout endpoints will answer 502")
	}

	checks := st.checks
	var limiter middlewares.Limiter
	if cfg.Redis.Addr != "" {
		rc := redisclient.New(redisclient.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rc.Close()

		if err := rc.Ping(ctx); err != nil {
			log.Warn("redis unreachable at startup; limiter fails open until it recovers", "err", err)
		}

		limiter = middlewares.NewRedisLimiter(rc.Raw(), cfg.RateLimit.Limit, cfg.RateLimit.Window)
		checks["redis"] = rc.Ping
	} else {
		limiter = middlewares.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}

	sctx, cancel := config.WithTimeout(ctx, 10*time.Second)
	created, err := db.EnsureAdmin(sctx, st.admins, hasher, cfg.Admin.Email, cfg.Admin.Password)
	cancel()
	if err != nil {
		return err
	}
	if created {
		log.Info("admin account seeded", "email", cfg.Admin.Email)
	}

	router := httpx.NewRouter(httpx.Deps{
		Logger:   log,
		Config:   cfg,
		Users:    st.users,
		Admins:   st.admins,
		Contacts: st.contacts,
		Hasher:   hasher,
		Tokens:   tokens,
		Codes:    codes,
		Mailer:   mailer,
		Gateway:  gateway,
		Limiter:  limiter,
		Prom:     prom,
		Gatherer: reg,
		Checks:   checks,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("server shutting down")

	shutdownCtx, cancelShutdown := config.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return err
	}

	log.Info("shutdown complete")
	return nil
}

// newSender picks SMTP or the log sender and puts the circuit breaker in
// front of it.
func newSender(cfg config.Config, log *slog.Logger) mail.Sender {
	var inner mail.Sender

	switch cfg.Mail.Provider {
	case "smtp":
		inner = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
			Timeout:  cfg.Mail.Timeout,
		})
	default:
		inner = mail.NewLogSender(log)
	}

	return mail.NewProtectedSender(inner, mail.ProtectedConfig{Timeout: cfg.Mail.Timeout})
}
