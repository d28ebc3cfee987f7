package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"kcbootstrap/internal/provision"
	"kcbootstrap/internal/validation"
)

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"KEYCLOAK_ADMIN", "KEYCLOAK_ADMIN_PASSWORD", "KEYCLOAK_SERVER", "KEYCLOAK_REALM",
		"KEYCLOAK_IDENTITY_PROVIDER", "KEYCLOAK_IDENTITY_PROVIDER_NAME", "KEYCLOAK_IDP_ISSUER",
		"KEYCLOAK_IDP_CLIENT_ID", "KEYCLOAK_IDP_DISCOVERY", "KEYCLOAK_CLAIM_MAPPINGS",
		"KEYCLOAK_REQUEST_TIMEOUT", "KEYCLOAK_RATE_LIMIT_RPS", "KEYCLOAK_RATE_LIMIT_BURST",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("LoadConfig() = %+v, want %+v", cfg, want)
	}
	if cfg.AdminUsername != "admin" || cfg.AdminPassword != "admin" {
		t.Errorf("admin credentials = %q/%q", cfg.AdminUsername, cfg.AdminPassword)
	}
	if cfg.ServerURL != "http://localhost:8080" || cfg.Realm != "test" {
		t.Errorf("server/realm = %q/%q", cfg.ServerURL, cfg.Realm)
	}
	if cfg.IdentityProvider != "spring-authorization-server" || cfg.IdentityProviderName != "Spring Authorization Server" {
		t.Errorf("identity provider = %q/%q", cfg.IdentityProvider, cfg.IdentityProviderName)
	}
	if !reflect.DeepEqual(cfg.ClaimMappings, provision.DefaultClaimMappings) {
		t.Errorf("ClaimMappings = %v", cfg.ClaimMappings)
	}
}

func TestLoadConfigEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("KEYCLOAK_ADMIN", "root")
	t.Setenv("KEYCLOAK_ADMIN_PASSWORD", "pw")
	t.Setenv("KEYCLOAK_SERVER", "https://sso.example.com/")
	t.Setenv("KEYCLOAK_REALM", "acme")
	t.Setenv("KEYCLOAK_IDENTITY_PROVIDER", "corp")
	t.Setenv("KEYCLOAK_IDENTITY_PROVIDER_NAME", "Corp SSO")
	t.Setenv("KEYCLOAK_IDP_DISCOVERY", "true")
	t.Setenv("KEYCLOAK_CLAIM_MAPPINGS", "email=email, preferred_username=username")
	t.Setenv("KEYCLOAK_REQUEST_TIMEOUT", "15s")
	t.Setenv("KEYCLOAK_RATE_LIMIT_RPS", "2.5")
	t.Setenv("KEYCLOAK_RATE_LIMIT_BURST", "3")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AdminUsername != "root" || cfg.AdminPassword != "pw" {
		t.Errorf("admin = %q/%q", cfg.AdminUsername, cfg.AdminPassword)
	}
	if cfg.ServerURL != "https://sso.example.com" {
		t.Errorf("ServerURL = %q, want trailing slash trimmed", cfg.ServerURL)
	}
	if cfg.Realm != "acme" || cfg.IdentityProvider != "corp" || cfg.IdentityProviderName != "Corp SSO" {
		t.Errorf("plan names = %q/%q/%q", cfg.Realm, cfg.IdentityProvider, cfg.IdentityProviderName)
	}
	if !cfg.IdPDiscovery {
		t.Error("IdPDiscovery should be true")
	}
	wantMappings := []provision.ClaimMapping{{Claim: "email", Attribute: "email"}, {Claim: "preferred_username", Attribute: "username"}}
	if !reflect.DeepEqual(cfg.ClaimMappings, wantMappings) {
		t.Errorf("ClaimMappings = %v", cfg.ClaimMappings)
	}
	if cfg.RequestTimeout != 15*time.Second || cfg.RateLimitRPS != 2.5 || cfg.RateLimitBurst != 3 {
		t.Errorf("timeout/rps/burst = %v/%v/%v", cfg.RequestTimeout, cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoadConfigYAMLWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "kcbootstrap.yaml")
	yaml := `
server_url: http://keycloak:8080
realm: from-file
identity_provider: file-idp
request_timeout: 20s
claim_mappings:
  - claim: email
    attribute: email
  - claim: groups
    attribute: groups
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KEYCLOAK_REALM", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != "http://keycloak:8080" || cfg.IdentityProvider != "file-idp" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Realm != "from-env" {
		t.Errorf("Realm = %q, environment should win over the file", cfg.Realm)
	}
	if cfg.RequestTimeout != 20*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if len(cfg.ClaimMappings) != 2 || cfg.ClaimMappings[1].Claim != "groups" {
		t.Errorf("ClaimMappings = %v", cfg.ClaimMappings)
	}
	if cfg.AdminUsername != "admin" {
		t.Errorf("defaults should survive a partial file, got %q", cfg.AdminUsername)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad server url", env: map[string]string{"KEYCLOAK_SERVER": "localhost:8080"}, wantErr: "server_url"},
		{name: "realm with slash", env: map[string]string{"KEYCLOAK_REALM": "a/b"}, wantErr: "realm"},
		{name: "alias with slash", env: map[string]string{"KEYCLOAK_IDENTITY_PROVIDER": "my/idp"}, wantErr: "identity_provider"},
		{name: "bad discovery flag", env: map[string]string{"KEYCLOAK_IDP_DISCOVERY": "sometimes"}, wantErr: "KEYCLOAK_IDP_DISCOVERY"},
		{name: "bad timeout", env: map[string]string{"KEYCLOAK_REQUEST_TIMEOUT": "soon"}, wantErr: "KEYCLOAK_REQUEST_TIMEOUT"},
		{name: "negative timeout", env: map[string]string{"KEYCLOAK_REQUEST_TIMEOUT": "-1s"}, wantErr: "request_timeout"},
		{name: "bad rps", env: map[string]string{"KEYCLOAK_RATE_LIMIT_RPS": "fast"}, wantErr: "KEYCLOAK_RATE_LIMIT_RPS"},
		{name: "bad mapping", env: map[string]string{"KEYCLOAK_CLAIM_MAPPINGS": "=email"}, wantErr: "KEYCLOAK_CLAIM_MAPPINGS"},
		{name: "duplicate claim", env: map[string]string{"KEYCLOAK_CLAIM_MAPPINGS": "email=email,email=username"}, wantErr: "mapped twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigAcceptsServerSideNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("KEYCLOAK_REALM", "_équipe")
	t.Setenv("KEYCLOAK_IDENTITY_PROVIDER", "-corp idp")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Realm != "_équipe" || cfg.IdentityProvider != "-corp idp" {
		t.Errorf("realm/alias = %q/%q", cfg.Realm, cfg.IdentityProvider)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateWrapsValidationErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Realm = ""
	err := cfg.Validate()
	if !errors.Is(err, validation.ErrEmptyValue) {
		t.Errorf("expected ErrEmptyValue, got %v", err)
	}
}

func TestParseClaimMappings(t *testing.T) {
	got, err := ParseClaimMappings("email, given_name=firstName,,family_name = lastName")
	if err != nil {
		t.Fatalf("ParseClaimMappings: %v", err)
	}
	want := []provision.ClaimMapping{
		{Claim: "email", Attribute: "email"},
		{Claim: "given_name", Attribute: "firstName"},
		{Claim: "family_name", Attribute: "lastName"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseClaimMappings() = %v, want %v", got, want)
	}

	if _, err := ParseClaimMappings(" , "); err == nil {
		t.Error("expected error for an empty list")
	}
}
