package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"kcbootstrap/internal/observability"
	"kcbootstrap/internal/testutil"
)

func stubConfig(stub *testutil.KeycloakStub) *Config {
	cfg := DefaultConfig()
	cfg.ServerURL = stub.URL()
	return cfg
}

func TestBootstrapCreatesEverything(t *testing.T) {
	stub := testutil.NewKeycloakStub(t)
	out := &bytes.Buffer{}
	ctx := observability.WithRunID(context.Background(), "run-1")

	report := bootstrap(ctx, stubConfig(stub), observability.NopLogger(), observability.NopReporter{}, out)

	if report.Succeeded() != 5 {
		t.Errorf("Succeeded() = %d, want 5", report.Succeeded())
	}
	got := out.String()
	for _, want := range []string{
		"CREATED  realm 'test'\n",
		"CREATED  identity provider 'spring-authorization-server'\n",
		"CREATED  'family_name' mapper for identity provider 'spring-authorization-server'\n",
		"5 of 5 steps succeeded",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "Setup complete\n") {
		t.Errorf("output should end with the completion message:\n%s", got)
	}
	for _, c := range stub.AdminCalls() {
		if c.RequestID != "run-1" {
			t.Errorf("%s X-Request-ID = %q, want run-1", c.Path, c.RequestID)
		}
	}
}

func TestBootstrapAuthenticationFailure(t *testing.T) {
	stub := testutil.NewKeycloakStub(t, testutil.WithTokenError("Invalid user credentials"))
	out := &bytes.Buffer{}

	report := bootstrap(context.Background(), stubConfig(stub), observability.NopLogger(), observability.NopReporter{}, out)

	if report.Authenticated {
		t.Error("report should not be authenticated")
	}
	if got := len(stub.AdminCalls()); got != 0 {
		t.Errorf("expected zero provisioning calls, got %d", got)
	}
	want := "Authentication failed: Invalid user credentials\n" +
		"No provisioning steps attempted: authentication failed\n" +
		"Setup complete\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestBootstrapConflictStillCompletes(t *testing.T) {
	stub := testutil.NewKeycloakStub(t,
		testutil.WithStatus("/admin/realms", http.StatusConflict, "Conflict detected. See logs for details"),
	)
	out := &bytes.Buffer{}

	report := bootstrap(context.Background(), stubConfig(stub), observability.NopLogger(), observability.NopReporter{}, out)

	if len(report.Failures()) != 1 {
		t.Errorf("expected one failure, got %d", len(report.Failures()))
	}
	got := out.String()
	if !strings.Contains(got, "FAILED   realm 'test': Conflict detected. See logs for details\n") {
		t.Errorf("output missing realm failure:\n%s", got)
	}
	if !strings.Contains(got, "4 of 5 steps succeeded") || !strings.HasSuffix(got, "Setup complete\n") {
		t.Errorf("unexpected output:\n%s", got)
	}
}

func TestBootstrapUsesConfiguredNames(t *testing.T) {
	stub := testutil.NewKeycloakStub(t)
	cfg := stubConfig(stub)
	cfg.Realm = "acme"
	cfg.IdentityProvider = "corp"
	cfg.RateLimitRPS = 50
	cfg.RateLimitBurst = 5

	bootstrap(context.Background(), cfg, observability.NopLogger(), observability.NopReporter{}, &bytes.Buffer{})

	calls := stub.AdminCalls()
	if len(calls) != 5 {
		t.Fatalf("expected 5 admin calls, got %d", len(calls))
	}
	if calls[0].JSON(t)["realm"] != "acme" {
		t.Errorf("realm payload = %s", calls[0].Body)
	}
	if calls[1].Path != "/admin/realms/acme/identity-provider/instances" {
		t.Errorf("idp path = %s", calls[1].Path)
	}
	if calls[4].Path != "/admin/realms/acme/identity-provider/instances/corp/mappers" {
		t.Errorf("mapper path = %s", calls[4].Path)
	}
}
