package spotify

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/cuebox/internal/domain/failure"
)

// Credential is the bearer credential handed to the playback stack.
type Credential struct {
	AccessToken     string
	Expiry          time.Time
	IsAuthenticated bool
}

// CredentialProvider supplies the current credential.
type CredentialProvider interface {
	Credential() Credential
}

// TokenSource adapts a CredentialProvider to oauth2.TokenSource so the
// credential is injected into every outbound request.
func TokenSource(p CredentialProvider) oauth2.TokenSource {
	return &providerTokenSource{provider: p}
}

type providerTokenSource struct {
	provider CredentialProvider
}

func (s *providerTokenSource) Token() (*oauth2.Token, error) {
	cred := s.provider.Credential()
	if !cred.IsAuthenticated || cred.AccessToken == "" {
		return nil, failure.ErrNotAuthenticated
	}
	return &oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
		Expiry:      cred.Expiry,
	}, nil
}

// RefreshCredentials keeps an access token fresh from a refresh token.
type RefreshCredentials struct {
	source oauth2.TokenSource

	mu      sync.Mutex
	revoked bool
}

// RefreshConfig holds the OAuth client settings.
type RefreshConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string // Defaults to the Spotify accounts endpoint
}

// NewRefreshCredentials creates a provider backed by an OAuth2 refresh token.
func NewRefreshCredentials(ctx context.Context, cfg RefreshConfig) (*RefreshCredentials, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyauth.AuthURL,
			TokenURL: tokenURL,
		},
		Scopes: PlaybackScopes(),
	}

	return &RefreshCredentials{
		source: oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}),
	}, nil
}

// Credential returns the current access token, refreshing it when expired.
func (c *RefreshCredentials) Credential() Credential {
	c.mu.Lock()
	revoked := c.revoked
	c.mu.Unlock()
	if revoked {
		return Credential{}
	}

	tok, err := c.source.Token()
	if err != nil {
		zlog.Warn().Msgf("spotify: credential refresh failed: %v", err)
		return Credential{}
	}
	return Credential{
		AccessToken:     tok.AccessToken,
		Expiry:          tok.Expiry,
		IsAuthenticated: tok.Valid(),
	}
}

// Revoke drops the credential (logout). Later calls report unauthenticated.
func (c *RefreshCredentials) Revoke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked = true
}

// StaticCredentials is a fixed credential, for tests and tools.
type StaticCredentials struct {
	AccessToken string
}

// Credential returns the fixed token; an empty token is unauthenticated.
func (s StaticCredentials) Credential() Credential {
	return Credential{
		AccessToken:     s.AccessToken,
		IsAuthenticated: s.AccessToken != "",
	}
}

// PlaybackScopes returns the OAuth scopes needed to control playback.
func PlaybackScopes() []string {
	return []string{
		spotifyauth.ScopeUserReadPlaybackState,
		spotifyauth.ScopeUserModifyPlaybackState,
		spotifyauth.ScopeUserReadCurrentlyPlaying,
		spotifyauth.ScopeStreaming,
	}
}
