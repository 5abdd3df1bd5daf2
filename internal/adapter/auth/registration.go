package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"limbo/internal/domain"
)

// serverMetadata is the subset of RFC 8414 authorization server metadata we use.
type serverMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	RegistrationEndpoint  string `json:"registration_endpoint"`
}

type registrationRequest struct {
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope                   string   `json:"scope,omitempty"`
}

type registrationResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// registerClient registers a public client (RFC 7591), discovering the
// registration endpoint from the authorization server's metadata when
// opts.RegistrationURL is empty.
func (a *Authenticator) registerClient(ctx context.Context, opts domain.AuthenticateOptions, redirect string) (*registrationResponse, error) {
	endpoint := opts.RegistrationURL
	if endpoint == "" {
		meta, err := a.discover(ctx, opts.AuthURL)
		if err != nil {
			return nil, fmt.Errorf("%w: discovery: %w", domain.ErrAuthFailed, err)
		}
		if meta.RegistrationEndpoint == "" {
			return nil, fmt.Errorf("%w: server does not support dynamic client registration", domain.ErrAuthFailed)
		}
		endpoint = meta.RegistrationEndpoint
	}

	name := opts.ClientName
	if name == "" {
		name = "limbo"
	}
	body, err := json.Marshal(registrationRequest{
		ClientName:              name,
		RedirectURIs:            []string{redirect},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
		Scope:                   strings.Join(opts.Scopes, " "),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: registration request: %w", domain.ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var reg registrationResponse
	if err := a.doJSON(req, &reg); err != nil {
		return nil, fmt.Errorf("%w: registration: %w", domain.ErrAuthFailed, err)
	}
	if reg.ClientID == "" {
		return nil, fmt.Errorf("%w: registration returned no client_id", domain.ErrAuthFailed)
	}
	a.logger.Info("oauth client registered", "endpoint", endpoint, "client_id", reg.ClientID)
	return &reg, nil
}

// discover fetches RFC 8414 metadata from the origin of authURL.
func (a *Authenticator) discover(ctx context.Context, authURL string) (*serverMetadata, error) {
	u, err := url.Parse(authURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid auth url %q", authURL)
	}
	wellKnown := u.Scheme + "://" + u.Host + "/.well-known/oauth-authorization-server"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var meta serverMetadata
	if err := a.doJSON(req, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (a *Authenticator) doJSON(req *http.Request, out any) error {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL, resp.StatusCode, bytes.TrimSpace(data))
	}
	return json.Unmarshal(data, out)
}
