package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	// AdminClientID is the built-in public client used for admin logins.
	AdminClientID = "admin-cli"
	// MasterRealm is the realm holding the server administrators.
	MasterRealm = "master"
)

// PasswordGrant obtains an admin bearer token with the resource owner
// password credentials grant against the master realm.
type PasswordGrant struct {
	ServerURL string
	Username  string
	Password  string
	// HTTPClient is used for the token request; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Acquire performs a single token request and returns the access token.
// Every failure is returned as an *AuthenticationError. A response carrying
// error_description fails with that text whatever its status, even when it
// also holds an access token.
func (g *PasswordGrant) Acquire(ctx context.Context) (string, error) {
	cfg := oauth2.Config{
		ClientID: AdminClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(g.ServerURL, "/") + TokenPath(MasterRealm),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	recorder := &bodyRecorder{}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, recorder.wrap(g.HTTPClient))

	token, err := cfg.PasswordCredentialsToken(ctx, g.Username, g.Password)
	if desc := errorDescription(recorder.body); desc != "" {
		return "", &AuthenticationError{Description: desc, Err: err}
	}
	if err != nil {
		return "", &AuthenticationError{Description: describeTokenError(err), Err: err}
	}
	if desc, _ := token.Extra("error_description").(string); desc != "" {
		return "", &AuthenticationError{Description: desc}
	}
	return token.AccessToken, nil
}

func describeTokenError(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch {
		case retrieveErr.ErrorDescription != "":
			return retrieveErr.ErrorDescription
		case errorDescription(retrieveErr.Body) != "":
			return errorDescription(retrieveErr.Body)
		case retrieveErr.ErrorCode != "":
			return retrieveErr.ErrorCode
		case retrieveErr.Response != nil:
			return "token endpoint returned " + retrieveErr.Response.Status
		}
	}
	return err.Error()
}

// errorDescription returns the error_description field of a JSON token
// response, or "" when body is not JSON or has none.
func errorDescription(body []byte) string {
	var resp struct {
		ErrorDescription string `json:"error_description"`
	}
	if len(body) == 0 || json.Unmarshal(body, &resp) != nil {
		return ""
	}
	return resp.ErrorDescription
}

// maxTokenResponseSize bounds the token response kept for inspection.
const maxTokenResponseSize = 1 << 20

// bodyRecorder keeps a copy of the token endpoint response body. oauth2
// drops the body of 2xx responses it cannot turn into a token.
type bodyRecorder struct {
	next http.RoundTripper
	body []byte
}

func (r *bodyRecorder) wrap(hc *http.Client) *http.Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	wrapped := *hc
	r.next = hc.Transport
	if r.next == nil {
		r.next = http.DefaultTransport
	}
	wrapped.Transport = r
	return &wrapped
}

func (r *bodyRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	r.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
