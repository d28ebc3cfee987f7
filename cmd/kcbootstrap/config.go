package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kcbootstrap/internal/provision"
	"kcbootstrap/internal/upstream"
	"kcbootstrap/internal/validation"
)

// Config holds the bootstrap configuration. It is built once at startup and
// passed explicitly to the components that need it.
type Config struct {
	AdminUsername        string                   `yaml:"admin_username"`
	AdminPassword        string                   `yaml:"admin_password"`
	ServerURL            string                   `yaml:"server_url"`
	Realm                string                   `yaml:"realm"`
	IdentityProvider     string                   `yaml:"identity_provider"`
	IdentityProviderName string                   `yaml:"identity_provider_name"`
	IdPIssuer            string                   `yaml:"idp_issuer"`
	IdPClientID          string                   `yaml:"idp_client_id"`
	IdPDiscovery         bool                     `yaml:"idp_discovery"`
	ClaimMappings        []provision.ClaimMapping `yaml:"claim_mappings"`
	RequestTimeout       time.Duration            `yaml:"request_timeout"`
	RateLimitRPS         float64                  `yaml:"rate_limit_rps"`
	RateLimitBurst       int                      `yaml:"rate_limit_burst"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	mappings := make([]provision.ClaimMapping, len(provision.DefaultClaimMappings))
	copy(mappings, provision.DefaultClaimMappings)
	return &Config{
		AdminUsername:        "admin",
		AdminPassword:        "admin",
		ServerURL:            "http://localhost:8080",
		Realm:                "test",
		IdentityProvider:     "spring-authorization-server",
		IdentityProviderName: "Spring Authorization Server",
		IdPIssuer:            upstream.DefaultIssuer,
		IdPClientID:          provision.DefaultIdPClientID,
		ClaimMappings:        mappings,
		RateLimitBurst:       1,
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	cfg.IdPIssuer = strings.TrimRight(strings.TrimSpace(cfg.IdPIssuer), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"KEYCLOAK_ADMIN":                  &c.AdminUsername,
		"KEYCLOAK_ADMIN_PASSWORD":         &c.AdminPassword,
		"KEYCLOAK_SERVER":                 &c.ServerURL,
		"KEYCLOAK_REALM":                  &c.Realm,
		"KEYCLOAK_IDENTITY_PROVIDER":      &c.IdentityProvider,
		"KEYCLOAK_IDENTITY_PROVIDER_NAME": &c.IdentityProviderName,
		"KEYCLOAK_IDP_ISSUER":             &c.IdPIssuer,
		"KEYCLOAK_IDP_CLIENT_ID":          &c.IdPClientID,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("KEYCLOAK_IDP_DISCOVERY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KEYCLOAK_IDP_DISCOVERY: %w", err)
		}
		c.IdPDiscovery = b
	}
	if v := os.Getenv("KEYCLOAK_CLAIM_MAPPINGS"); v != "" {
		mappings, err := ParseClaimMappings(v)
		if err != nil {
			return fmt.Errorf("KEYCLOAK_CLAIM_MAPPINGS: %w", err)
		}
		c.ClaimMappings = mappings
	}
	if v := os.Getenv("KEYCLOAK_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KEYCLOAK_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	if v := os.Getenv("KEYCLOAK_RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("KEYCLOAK_RATE_LIMIT_RPS: %w", err)
		}
		c.RateLimitRPS = rps
	}
	if v := os.Getenv("KEYCLOAK_RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KEYCLOAK_RATE_LIMIT_BURST: %w", err)
		}
		c.RateLimitBurst = burst
	}
	return nil
}

// ParseClaimMappings parses "claim=attribute" pairs separated by commas.
// An entry without "=" maps the claim onto an attribute of the same name.
func ParseClaimMappings(s string) ([]provision.ClaimMapping, error) {
	var out []provision.ClaimMapping
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		claim, attr, found := strings.Cut(part, "=")
		claim, attr = strings.TrimSpace(claim), strings.TrimSpace(attr)
		if !found {
			attr = claim
		}
		if claim == "" || attr == "" {
			return nil, fmt.Errorf("invalid mapping %q, want claim=attribute", part)
		}
		out = append(out, provision.ClaimMapping{Claim: claim, Attribute: attr})
	}
	if len(out) == 0 {
		return nil, errors.New("no claim mappings given")
	}
	return out, nil
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	if err := validation.ValidateURL(c.ServerURL); err != nil {
		return fmt.Errorf("server_url (KEYCLOAK_SERVER): %w", err)
	}
	if err := validation.ValidateURL(c.IdPIssuer); err != nil {
		return fmt.Errorf("idp_issuer (KEYCLOAK_IDP_ISSUER): %w", err)
	}
	if err := validation.ValidateName(c.AdminUsername); err != nil {
		return fmt.Errorf("admin_username (KEYCLOAK_ADMIN): %w", err)
	}
	if c.AdminPassword == "" {
		return errors.New("admin_password is required (set KEYCLOAK_ADMIN_PASSWORD or yaml)")
	}
	if err := validation.ValidateIdentifier(c.Realm); err != nil {
		return fmt.Errorf("realm (KEYCLOAK_REALM): %w", err)
	}
	if err := validation.ValidateIdentifier(c.IdentityProvider); err != nil {
		return fmt.Errorf("identity_provider (KEYCLOAK_IDENTITY_PROVIDER): %w", err)
	}
	if err := validation.ValidateName(c.IdentityProviderName); err != nil {
		return fmt.Errorf("identity_provider_name (KEYCLOAK_IDENTITY_PROVIDER_NAME): %w", err)
	}
	if err := validation.ValidateName(c.IdPClientID); err != nil {
		return fmt.Errorf("idp_client_id (KEYCLOAK_IDP_CLIENT_ID): %w", err)
	}
	if len(c.ClaimMappings) == 0 {
		return errors.New("claim_mappings must not be empty")
	}
	seen := make(map[string]bool, len(c.ClaimMappings))
	for _, m := range c.ClaimMappings {
		if err := validation.ValidateName(m.Claim); err != nil {
			return fmt.Errorf("claim_mappings claim: %w", err)
		}
		if err := validation.ValidateName(m.Attribute); err != nil {
			return fmt.Errorf("claim_mappings attribute for %q: %w", m.Claim, err)
		}
		if seen[m.Claim] {
			return fmt.Errorf("claim_mappings: claim %q mapped twice", m.Claim)
		}
		seen[m.Claim] = true
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must not be negative")
	}
	if c.RateLimitRPS < 0 {
		return errors.New("rate_limit_rps must not be negative")
	}
	return nil
}

// PlanSettings returns the plan inputs for the resolved upstream endpoints.
func (c *Config) PlanSettings(endpoints upstream.Endpoints) provision.Settings {
	return provision.Settings{
		Realm:       c.Realm,
		Alias:       c.IdentityProvider,
		DisplayName: c.IdentityProviderName,
		ClientID:    c.IdPClientID,
		Endpoints:   endpoints,
		Mappings:    c.ClaimMappings,
	}
}
