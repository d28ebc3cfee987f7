// Package provision runs the fixed bootstrap plan against the Keycloak admin API.
package provision

import (
	"fmt"
	"strconv"

	"kcbootstrap/internal/keycloak"
	"kcbootstrap/internal/upstream"
)

// Resource kinds created by the plan.
const (
	ResourceRealm            = "realm"
	ResourceIdentityProvider = "identity_provider"
	ResourceMapper           = "identity_provider_mapper"
)

// DefaultIdPClientID is the client registered for Keycloak at the authorization server.
const DefaultIdPClientID = "keycloak-client"

// ClaimMapping projects an upstream claim onto a local user attribute.
type ClaimMapping struct {
	Claim     string `yaml:"claim"`
	Attribute string `yaml:"attribute"`
}

// DefaultClaimMappings are the standard OIDC profile claims mapped onto the
// Keycloak user profile.
var DefaultClaimMappings = []ClaimMapping{
	{Claim: "email", Attribute: "email"},
	{Claim: "given_name", Attribute: "firstName"},
	{Claim: "family_name", Attribute: "lastName"},
}

// Settings are the inputs of the bootstrap plan.
type Settings struct {
	Realm       string
	Alias       string
	DisplayName string
	// ClientID is the client Keycloak authenticates as at the upstream server.
	ClientID  string
	Endpoints upstream.Endpoints
	// Mappings defaults to DefaultClaimMappings when empty.
	Mappings []ClaimMapping
}

// Step is one create call of the plan.
type Step struct {
	Name     string
	Resource string
	Path     string
	Payload  any
}

// BuildPlan returns the ordered steps: the realm, the identity provider in that
// realm, then one mapper per claim mapping on that identity provider.
func BuildPlan(s Settings) []Step {
	mappings := s.Mappings
	if len(mappings) == 0 {
		mappings = DefaultClaimMappings
	}
	clientID := s.ClientID
	if clientID == "" {
		clientID = DefaultIdPClientID
	}

	plan := make([]Step, 0, 2+len(mappings))
	plan = append(plan,
		Step{
			Name:     fmt.Sprintf("realm '%s'", s.Realm),
			Resource: ResourceRealm,
			Path:     keycloak.RealmsPath(),
			Payload: keycloak.RealmRepresentation{
				Realm:               s.Realm,
				Enabled:             true,
				RegistrationAllowed: true,
			},
		},
		Step{
			Name:     fmt.Sprintf("identity provider '%s'", s.Alias),
			Resource: ResourceIdentityProvider,
			Path:     keycloak.IdentityProvidersPath(s.Realm),
			Payload: keycloak.IdentityProviderRepresentation{
				Alias:       s.Alias,
				DisplayName: s.DisplayName,
				ProviderID:  keycloak.ProviderOIDC,
				Config:      identityProviderConfig(clientID, s.Endpoints),
			},
		},
	)

	for _, m := range mappings {
		plan = append(plan, Step{
			Name:     fmt.Sprintf("'%s' mapper for identity provider '%s'", m.Claim, s.Alias),
			Resource: ResourceMapper,
			Path:     keycloak.IdentityProviderMappersPath(s.Realm, s.Alias),
			Payload: keycloak.IdentityProviderMapperRepresentation{
				Name:                   m.Claim,
				IdentityProviderAlias:  s.Alias,
				IdentityProviderMapper: keycloak.MapperOIDCUserAttribute,
				Config: map[string]string{
					"claim":          m.Claim,
					"syncMode":       keycloak.SyncModeInherit,
					"user.attribute": m.Attribute,
				},
			},
		})
	}
	return plan
}

func identityProviderConfig(clientID string, ep upstream.Endpoints) map[string]string {
	return map[string]string{
		"authorizationUrl":          ep.AuthorizationURL,
		"tokenUrl":                  ep.TokenURL,
		"userInfoUrl":               ep.UserInfoURL,
		"jwksUrl":                   ep.JWKSURL,
		"issuer":                    ep.Issuer,
		"logoutUrl":                 ep.LogoutURL,
		"metadataDescriptorUrl":     ep.MetadataURL,
		"clientAuthMethod":          keycloak.ClientAuthPrivateKeyJWT,
		"clientId":                  clientID,
		"clientSecret":              "",
		"clientAssertionAudience":   "",
		"clientAssertionSigningAlg": "",
		"guiOrder":                  "",
		"jwtX509HeadersEnabled":     strconv.FormatBool(false),
		"pkceEnabled":               strconv.FormatBool(false),
		"useJwksUrl":                strconv.FormatBool(true),
		"validateSignature":         strconv.FormatBool(true),
	}
}
