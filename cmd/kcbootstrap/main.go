package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"kcbootstrap/internal/keycloak"
	"kcbootstrap/internal/observability"
	"kcbootstrap/internal/provision"
	"kcbootstrap/internal/upstream"
)

const version = "dev"

func main() {
	logger := observability.NewLogger(observability.ConfigFromEnv())

	reporter, err := observability.NewErrorReporter(observability.SentryConfigFromEnv())
	if err != nil {
		logger.Warn("sentry initialization failed", "error", err)
	}

	cfg, err := LoadConfig(os.Getenv("KEYCLOAK_BOOTSTRAP_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Info("received signal, cancelling remaining steps", "signal", sig)
		cancel()
	}()

	runID := uuid.New().String()
	ctx = observability.WithRunID(ctx, runID)

	logger.InfoContext(ctx, "kcbootstrap starting",
		"version", version,
		"server_url", cfg.ServerURL,
		"realm", cfg.Realm,
		"identity_provider", cfg.IdentityProvider,
	)

	bootstrap(ctx, cfg, logger, reporter, os.Stdout)
	reporter.Flush(2 * time.Second)
}

// bootstrap runs one provisioning pass and prints its summary to out. It always
// ends with the completion message, whatever the number of failures.
func bootstrap(ctx context.Context, cfg *Config, logger observability.Logger, reporter observability.ErrorReporter, out io.Writer) *provision.Report {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	endpoints := upstream.Resolve(ctx, upstream.ResolveOptions{
		Issuer:     cfg.IdPIssuer,
		Discover:   cfg.IdPDiscovery,
		HTTPClient: httpClient,
	}, logger.WithComponent("upstream"))

	grant := &keycloak.PasswordGrant{
		ServerURL:  cfg.ServerURL,
		Username:   cfg.AdminUsername,
		Password:   cfg.AdminPassword,
		HTTPClient: httpClient,
	}
	newClient := func(token string) provision.Creator {
		return keycloak.NewClient(cfg.ServerURL,
			keycloak.WithToken(token),
			keycloak.WithHTTPClient(httpClient),
			keycloak.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
			keycloak.WithRequestID(observability.RunIDFromContext(ctx)),
		)
	}

	orchestrator := provision.NewOrchestrator(grant, newClient,
		provision.WithLogger(logger),
		provision.WithErrorReporter(reporter),
	)

	report, err := orchestrator.Run(ctx, provision.BuildPlan(cfg.PlanSettings(endpoints)))
	if err != nil {
		var authErr *keycloak.AuthenticationError
		if errors.As(err, &authErr) {
			_, _ = fmt.Fprintf(out, "Authentication failed: %s\n", authErr.Description)
		} else {
			_, _ = fmt.Fprintf(out, "Authentication failed: %v\n", err)
		}
	}
	report.Print(out)
	_, _ = fmt.Fprintln(out, "Setup complete")
	return report
}
