package keycloak

// RealmRepresentation is the subset of Keycloak's RealmRepresentation sent on creation.
type RealmRepresentation struct {
	Realm               string `json:"realm"`
	Enabled             bool   `json:"enabled"`
	RegistrationAllowed bool   `json:"registrationAllowed"`
}

// IdentityProviderRepresentation describes a brokered identity provider.
// Config values are strings on the wire, booleans included.
type IdentityProviderRepresentation struct {
	Alias       string            `json:"alias"`
	DisplayName string            `json:"displayName,omitempty"`
	ProviderID  string            `json:"providerId"`
	Config      map[string]string `json:"config"`
}

// IdentityProviderMapperRepresentation maps a claim of a brokered identity onto the local user.
type IdentityProviderMapperRepresentation struct {
	Name                   string            `json:"name"`
	IdentityProviderAlias  string            `json:"identityProviderAlias"`
	IdentityProviderMapper string            `json:"identityProviderMapper"`
	Config                 map[string]string `json:"config"`
}

// Identity provider and mapper constants understood by the admin API.
const (
	ProviderOIDC            = "oidc"
	MapperOIDCUserAttribute = "oidc-user-attribute-idp-mapper"
	ClientAuthPrivateKeyJWT = "private_key_jwt"
)

// SyncModeInherit makes a mapper follow the identity provider's sync mode.
const SyncModeInherit = "INHERIT"
