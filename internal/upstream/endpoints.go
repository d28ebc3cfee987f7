// Package upstream resolves the endpoints of the external OpenID Connect
// authorization server that Keycloak brokers logins to.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"

	"kcbootstrap/internal/observability"
)

// DefaultIssuer is the issuer of a locally running Spring Authorization Server.
const DefaultIssuer = "http://localhost:9000"

// Endpoints is the endpoint set registered on the Keycloak identity provider.
type Endpoints struct {
	Issuer           string
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
	JWKSURL          string
	LogoutURL        string
	MetadataURL      string
}

// StaticEndpoints returns the Spring Authorization Server endpoint layout under issuer.
func StaticEndpoints(issuer string) Endpoints {
	base := strings.TrimRight(issuer, "/")
	return Endpoints{
		Issuer:           base,
		AuthorizationURL: base + "/oauth2/authorize",
		TokenURL:         base + "/oauth2/token",
		UserInfoURL:      base + "/userinfo",
		JWKSURL:          base + "/oauth2/jwks",
		LogoutURL:        base + "/connect/logout",
		MetadataURL:      base + "/.well-known/openid-configuration",
	}
}

// discoveryDocument holds the metadata fields go-oidc does not expose directly.
type discoveryDocument struct {
	JWKSURL       string `json:"jwks_uri"`
	EndSessionURL string `json:"end_session_endpoint"`
}

// Discover performs OIDC discovery on issuer. Endpoints missing from the
// discovery document keep their static defaults.
func Discover(ctx context.Context, client *http.Client, issuer string) (Endpoints, error) {
	issuer = strings.TrimRight(issuer, "/")
	if client != nil {
		ctx = gooidc.ClientContext(ctx, client)
	}

	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return Endpoints{}, fmt.Errorf("oidc discovery: %w", err)
	}

	var doc discoveryDocument
	if err := provider.Claims(&doc); err != nil {
		return Endpoints{}, fmt.Errorf("decode discovery document: %w", err)
	}

	ep := StaticEndpoints(issuer)
	endpoint := provider.Endpoint()
	setIfPresent(&ep.AuthorizationURL, endpoint.AuthURL)
	setIfPresent(&ep.TokenURL, endpoint.TokenURL)
	setIfPresent(&ep.UserInfoURL, provider.UserInfoEndpoint())
	setIfPresent(&ep.JWKSURL, doc.JWKSURL)
	setIfPresent(&ep.LogoutURL, doc.EndSessionURL)
	return ep, nil
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ErrNoSigningKeys is returned when a JWKS holds no usable public signing key.
var ErrNoSigningKeys = errors.New("jwks contains no public signing keys")

// FetchKeySet downloads the JWKS at jwksURL and returns the key ids of the
// valid public signing keys it contains.
func FetchKeySet(ctx context.Context, client *http.Client, jwksURL string) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	var kids []string
	for _, key := range set.Keys {
		if !key.Valid() || !key.IsPublic() {
			continue
		}
		if key.Use != "" && key.Use != "sig" {
			continue
		}
		kids = append(kids, key.KeyID)
	}
	if len(kids) == 0 {
		return nil, ErrNoSigningKeys
	}
	return kids, nil
}

// ResolveOptions controls how Resolve builds the endpoint set.
type ResolveOptions struct {
	Issuer string
	// Discover enables OIDC discovery and the JWKS preflight.
	Discover   bool
	HTTPClient *http.Client
}

// Resolve returns the endpoint set to register. Without discovery it is the
// static layout. With discovery, failures are logged and the static layout is
// used, so an unreachable authorization server never blocks provisioning.
func Resolve(ctx context.Context, opts ResolveOptions, logger observability.Logger) Endpoints {
	if logger == nil {
		logger = observability.NopLogger()
	}
	static := StaticEndpoints(opts.Issuer)
	if !opts.Discover {
		return static
	}

	ep, err := Discover(ctx, opts.HTTPClient, opts.Issuer)
	if err != nil {
		logger.WarnContext(ctx, "upstream discovery failed, using static endpoints",
			"issuer", static.Issuer, "error", err)
		return static
	}
	logger.InfoContext(ctx, "discovered upstream endpoints",
		"issuer", ep.Issuer, "token_url", ep.TokenURL, "jwks_url", ep.JWKSURL)

	kids, err := FetchKeySet(ctx, opts.HTTPClient, ep.JWKSURL)
	if err != nil {
		logger.WarnContext(ctx, "upstream jwks preflight failed", "jwks_url", ep.JWKSURL, "error", err)
	} else {
		logger.InfoContext(ctx, "upstream jwks available", "jwks_url", ep.JWKSURL, "kids", kids)
	}
	return ep
}
