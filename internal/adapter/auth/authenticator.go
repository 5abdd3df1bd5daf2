// Package auth obtains OAuth2 access tokens for plugins using the
// authorization code flow with PKCE and a loopback redirect.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"limbo/internal/domain"
	"limbo/internal/infra/config"
)

// Compile-time check: Authenticator implements domain.Authenticator.
var _ domain.Authenticator = (*Authenticator)(nil)

// AuthorizationPrompter sends the user to the authorization URL, typically by
// printing it or opening a browser. It returns once the user has been told;
// the redirect arrives on the loopback listener.
type AuthorizationPrompter interface {
	PromptAuthorization(ctx context.Context, authURL string) error
}

// PrompterFunc adapts a function to AuthorizationPrompter.
type PrompterFunc func(ctx context.Context, authURL string) error

func (f PrompterFunc) PromptAuthorization(ctx context.Context, authURL string) error {
	return f(ctx, authURL)
}

// TokenCache persists encrypted tokens between runs.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Authenticator runs OAuth2 flows and caches the resulting tokens. Tokens are
// always cached in memory; they are persisted to the TokenCache only when a
// passphrase is configured.
type Authenticator struct {
	prompter     AuthorizationPrompter
	tokens       TokenCache
	passphrase   string
	callbackAddr string
	timeout      time.Duration
	httpClient   *http.Client
	logger       *slog.Logger

	flights singleflight.Group
	mu      sync.Mutex
	memory  map[string]*oauth2.Token
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithHTTPClient sets the client used for discovery, registration and token
// requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authenticator) { a.httpClient = c }
}

// New creates an Authenticator. tokens may be nil.
func New(cfg config.AuthConfig, prompter AuthorizationPrompter, tokens TokenCache, logger *slog.Logger, opts ...Option) *Authenticator {
	a := &Authenticator{
		prompter:     prompter,
		tokens:       tokens,
		passphrase:   cfg.TokenCacheKey,
		callbackAddr: cfg.CallbackAddr,
		timeout:      cfg.Timeout,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		memory:       make(map[string]*oauth2.Token),
	}
	if a.callbackAddr == "" {
		a.callbackAddr = "127.0.0.1:0"
	}
	if a.timeout <= 0 {
		a.timeout = 5 * time.Minute
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Authenticate returns an access token for the authorization server described
// by opts. A cached token is reused while valid and refreshed when it has a
// refresh token. Concurrent calls for the same server share one flow.
func (a *Authenticator) Authenticate(ctx context.Context, opts domain.AuthenticateOptions) (string, error) {
	if opts.AuthURL == "" || opts.TokenURL == "" {
		return "", domain.NewSubSystemError("auth", "Auth.Authenticate", domain.ErrInvalidInput, "auth url and token url are required")
	}
	key := cacheKey(opts)

	v, err, _ := a.flights.Do(key, func() (any, error) {
		return a.authenticate(ctx, key, opts)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (a *Authenticator) authenticate(ctx context.Context, key string, opts domain.AuthenticateOptions) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	if tok := a.cached(ctx, key); tok != nil {
		if tok.Valid() {
			a.logger.Debug("oauth token reused", "token_url", opts.TokenURL)
			return tok.AccessToken, nil
		}
		refreshed, err := a.refresh(ctx, opts, tok)
		if err == nil {
			a.store(ctx, key, refreshed)
			return refreshed.AccessToken, nil
		}
		a.logger.Info("oauth token refresh failed, reauthorizing", "token_url", opts.TokenURL, "error", err)
	}

	tok, err := a.authorize(ctx, opts)
	if err != nil {
		return "", err
	}
	a.store(ctx, key, tok)
	return tok.AccessToken, nil
}

// authorize runs the full authorization code flow.
func (a *Authenticator) authorize(ctx context.Context, opts domain.AuthenticateOptions) (*oauth2.Token, error) {
	if a.prompter == nil {
		return nil, domain.NewDomainError("Auth.Authenticate", domain.ErrNoAuthorizer, opts.AuthURL)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	state := uuid.NewString()
	cb, err := listenCallback(a.callbackAddr, state, a.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthFailed, err)
	}
	defer cb.Close()

	clientID, clientSecret := opts.ClientID, ""
	if clientID == "" {
		reg, err := a.registerClient(ctx, opts, cb.RedirectURL())
		if err != nil {
			return nil, err
		}
		clientID, clientSecret = reg.ClientID, reg.ClientSecret
	}

	cfg := oauthConfig(opts, clientID, clientSecret, cb.RedirectURL())
	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	if err := a.prompter.PromptAuthorization(ctx, authURL); err != nil {
		return nil, fmt.Errorf("%w: prompt: %w", domain.ErrAuthFailed, err)
	}

	code, err := cb.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", domain.ErrAuthFailed,
				domain.NewSubSystemError("auth", "Auth.Authenticate", domain.ErrTimeout, "no authorization response"))
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthFailed, err)
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %w", domain.ErrAuthFailed, err)
	}
	a.logger.Info("oauth authorization complete", "token_url", opts.TokenURL, "client_id", clientID)
	return withClientID(tok, clientID), nil
}

func (a *Authenticator) refresh(ctx context.Context, opts domain.AuthenticateOptions, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok.RefreshToken == "" {
		return nil, errors.New("no refresh token")
	}
	clientID := tokenClientID(tok)
	if opts.ClientID != "" {
		clientID = opts.ClientID
	}
	cfg := oauthConfig(opts, clientID, "", "")
	refreshed, err := cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, err
	}
	return withClientID(refreshed, clientID), nil
}

// The client id travels with the token so that dynamically registered
// clients can refresh.
func withClientID(tok *oauth2.Token, clientID string) *oauth2.Token {
	return tok.WithExtra(map[string]any{"client_id": clientID})
}

func tokenClientID(tok *oauth2.Token) string {
	id, _ := tok.Extra("client_id").(string)
	return id
}

func oauthConfig(opts domain.AuthenticateOptions, clientID, clientSecret, redirect string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: opts.AuthURL, TokenURL: opts.TokenURL},
		RedirectURL:  redirect,
		Scopes:       opts.Scopes,
	}
}

// --- token cache ---

// cachedToken is the persisted form of a token.
type cachedToken struct {
	Token    *oauth2.Token `json:"token"`
	ClientID string        `json:"client_id,omitempty"`
}

func (a *Authenticator) cached(ctx context.Context, key string) *oauth2.Token {
	a.mu.Lock()
	tok, ok := a.memory[key]
	a.mu.Unlock()
	if ok {
		return tok
	}
	if a.tokens == nil || a.passphrase == "" {
		return nil
	}

	enc, found, err := a.tokens.Get(ctx, key)
	if err != nil || !found {
		if err != nil {
			a.logger.Warn("oauth token cache read failed", "error", err)
		}
		return nil
	}
	plain, err := config.DecryptValue(strings.TrimPrefix(enc, config.EncPrefix), a.passphrase)
	if err != nil {
		a.logger.Warn("cached oauth token unreadable, discarding", "error", err)
		a.tokens.Delete(ctx, key)
		return nil
	}
	var ct cachedToken
	if err := json.Unmarshal([]byte(plain), &ct); err != nil || ct.Token == nil {
		return nil
	}
	tok = withClientID(ct.Token, ct.ClientID)
	a.mu.Lock()
	a.memory[key] = tok
	a.mu.Unlock()
	return tok
}

func (a *Authenticator) store(ctx context.Context, key string, tok *oauth2.Token) {
	a.mu.Lock()
	a.memory[key] = tok
	a.mu.Unlock()
	if a.tokens == nil || a.passphrase == "" {
		return
	}

	data, err := json.Marshal(cachedToken{Token: tok, ClientID: tokenClientID(tok)})
	if err != nil {
		return
	}
	enc, err := config.EncryptValue(string(data), a.passphrase)
	if err != nil {
		a.logger.Warn("oauth token encryption failed", "error", err)
		return
	}
	if err := a.tokens.Put(ctx, key, config.EncPrefix+enc); err != nil {
		a.logger.Warn("oauth token cache write failed", "error", err)
	}
}

// cacheKey identifies a token by server, client and scopes.
func cacheKey(opts domain.AuthenticateOptions) string {
	scopes := slices.Clone(opts.Scopes)
	slices.Sort(scopes)
	return strings.Join([]string{opts.TokenURL, opts.ClientID, strings.Join(scopes, " ")}, "|")
}
