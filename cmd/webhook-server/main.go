// Command webhook-server serves POST /webhook behind identity-token verification.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	runauth "github.com/bionicotaku/lingo-utils-runauth"
	"github.com/bionicotaku/lingo-utils-runauth/internal/config"
	"github.com/bionicotaku/lingo-utils-runauth/internal/webhook"
)

func main() {
	// .env is optional and never overrides the real environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("webhook server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	verifier, err := newVerifier(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := webhook.NewServer(verifier, webhook.WithLogger(logger))
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening",
			"addr", httpServer.Addr,
			"audience", verifier.Audience(),
			"identity_suffix", verifier.IdentitySuffix(),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newVerifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runauth.TokenVerifier, error) {
	opts := []runauth.Option{
		runauth.WithIdentitySuffix(cfg.IdentitySuffix),
		runauth.WithTimeout(cfg.VerifyTimeout),
	}
	if cfg.Audience.Domain != "" {
		opts = append(opts, runauth.WithAudienceDomain(cfg.Audience.Domain))
	}

	if cfg.JWKSURL != "" {
		validator, err := runauth.NewJWKSValidator(ctx, runauth.JWKSConfig{
			URL:       cfg.JWKSURL,
			Issuer:    cfg.Issuer,
			ClockSkew: cfg.ClockSkew,
		})
		if err != nil {
			return nil, err
		}
		if err := validator.Warmup(ctx); err != nil {
			logger.Warn("jwks warmup failed", "url", cfg.JWKSURL, "error", err)
		}
		opts = append(opts, runauth.WithValidateFunc(validator.Validate))
	}

	return runauth.New(cfg.Audience.TenantID, cfg.Audience.ResourceID, cfg.Audience.RegionID, opts...), nil
}
