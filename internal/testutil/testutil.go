// Package testutil provides an in-process stand-in for the Keycloak token
// endpoint and admin API, recording every request it receives.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// TokenPath is the master realm token endpoint served by the stub.
const TokenPath = "/realms/master/protocol/openid-connect/token"

// Call is one request received by the stub.
type Call struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	RequestID     string
	Body          []byte
	Form          url.Values
}

// JSON decodes the recorded body into a generic map.
func (c Call) JSON(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(c.Body, &m); err != nil {
		t.Fatalf("decode body of %s %s: %v", c.Method, c.Path, err)
	}
	return m
}

type cannedResponse struct {
	status int
	body   string
}

// KeycloakStub is a recording fake of the endpoints kcbootstrap calls.
type KeycloakStub struct {
	Server *httptest.Server

	mu          sync.Mutex
	calls       []Call
	accessToken string
	tokenError  string
	responses   map[string]cannedResponse
	stateful    bool
	realms      map[string]bool
	providers   map[string]bool
	mappers     map[string]bool
}

// StubOption configures a KeycloakStub.
type StubOption func(*KeycloakStub)

// WithAccessToken sets the token handed out by the token endpoint.
func WithAccessToken(token string) StubOption {
	return func(s *KeycloakStub) { s.accessToken = token }
}

// WithTokenError makes the token endpoint reject logins with description.
func WithTokenError(description string) StubOption {
	return func(s *KeycloakStub) { s.tokenError = description }
}

// WithStatus answers requests to path with status and a Keycloak style errorMessage body.
func WithStatus(path string, status int, message string) StubOption {
	body, _ := json.Marshal(map[string]string{"errorMessage": message})
	return WithResponse(path, status, string(body))
}

// WithResponse answers requests to path with a raw status and body.
func WithResponse(path string, status int, body string) StubOption {
	return func(s *KeycloakStub) { s.responses[path] = cannedResponse{status: status, body: body} }
}

// Stateful makes the admin endpoints remember created resources and answer
// 409 for duplicates and 404 for missing parents, like a real server.
func Stateful() StubOption {
	return func(s *KeycloakStub) { s.stateful = true }
}

// NewKeycloakStub starts a stub server that is closed when the test ends.
func NewKeycloakStub(t *testing.T, opts ...StubOption) *KeycloakStub {
	t.Helper()

	s := &KeycloakStub{
		accessToken: "stub-access-token",
		responses:   make(map[string]cannedResponse),
		realms:      make(map[string]bool),
		providers:   make(map[string]bool),
		mappers:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+TokenPath, s.handleToken)
	mux.HandleFunc("POST /admin/realms", s.handleRealm)
	mux.HandleFunc("POST /admin/realms/{realm}/identity-provider/instances", s.handleProvider)
	mux.HandleFunc("POST /admin/realms/{realm}/identity-provider/instances/{alias}/mappers", s.handleMapper)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// URL is the stub's base URL.
func (s *KeycloakStub) URL() string {
	return s.Server.URL
}

// Calls returns every recorded request in arrival order.
func (s *KeycloakStub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// AdminCalls returns the recorded requests other than token requests.
func (s *KeycloakStub) AdminCalls() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Path != TokenPath {
			out = append(out, c)
		}
	}
	return out
}

func (s *KeycloakStub) record(r *http.Request) Call {
	body, _ := io.ReadAll(r.Body)
	c := Call{
		Method:        r.Method,
		Path:          r.URL.EscapedPath(),
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		RequestID:     r.Header.Get("X-Request-ID"),
		Body:          body,
	}
	if c.ContentType == "application/x-www-form-urlencoded" {
		c.Form, _ = url.ParseQuery(string(body))
	}
	s.calls = append(s.calls, c)
	return c
}

func (s *KeycloakStub) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(r)

	if s.tokenError != "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error":             "invalid_grant",
			"error_description": s.tokenError,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": s.accessToken,
		"token_type":   "Bearer",
		"expires_in":   60,
	})
}

// admit records the call and writes any canned or auth failure response.
// It reports whether the handler should continue.
func (s *KeycloakStub) admit(w http.ResponseWriter, r *http.Request) (Call, bool) {
	c := s.record(r)
	if c.Authorization != "Bearer "+s.accessToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "HTTP 401 Unauthorized"})
		return c, false
	}
	if canned, ok := s.responses[c.Path]; ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(canned.status)
		_, _ = io.WriteString(w, canned.body)
		return c, false
	}
	return c, true
}

func (s *KeycloakStub) handleRealm(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.admit(w, r)
	if !ok {
		return
	}
	if s.stateful {
		name, _ := decodeField(c.Body, "realm")
		if s.realms[name] {
			writeJSON(w, http.StatusConflict, map[string]string{"errorMessage": "Conflict detected. See logs for details"})
			return
		}
		s.realms[name] = true
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *KeycloakStub) handleProvider(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.admit(w, r)
	if !ok {
		return
	}
	if s.stateful {
		realm := r.PathValue("realm")
		if !s.realms[realm] {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Realm not found."})
			return
		}
		alias, _ := decodeField(c.Body, "alias")
		key := realm + "/" + alias
		if s.providers[key] {
			writeJSON(w, http.StatusConflict, map[string]string{"errorMessage": "Identity Provider " + alias + " already exists"})
			return
		}
		s.providers[key] = true
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *KeycloakStub) handleMapper(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.admit(w, r)
	if !ok {
		return
	}
	if s.stateful {
		provider := r.PathValue("realm") + "/" + r.PathValue("alias")
		if !s.providers[provider] {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Identity Provider not found."})
			return
		}
		name, _ := decodeField(c.Body, "name")
		key := provider + "/" + name
		if s.mappers[key] {
			writeJSON(w, http.StatusConflict, map[string]string{"errorMessage": "IDP mapper name must be unique per IDP"})
			return
		}
		s.mappers[key] = true
	}
	w.WriteHeader(http.StatusCreated)
}

func decodeField(body []byte, field string) (string, bool) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return "", false
	}
	v, ok := m[field].(string)
	return v, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
