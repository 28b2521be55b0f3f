package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/microsoft"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/pkg/cryptox"
)

const (
	ProviderGitHub    = "github"
	ProviderMicrosoft = "microsoft"
	ProviderOIDC      = "oidc"
)

func knownProvider(name string) bool {
	switch name {
	case ProviderGitHub, ProviderMicrosoft, ProviderOIDC:
		return true
	}
	return false
}

// ProviderConfig holds the client registration with an OAuth2 provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Provider is an OAuth2 identity provider. OAuth2.RedirectURL is filled per
// service from its OAuth2RedirectURLs.
type Provider struct {
	Name   string
	OAuth2 oauth2.Config

	// Email returns the address of the account tok was issued for.
	Email func(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token) (string, error)
}

// NewJSONProvider returns a provider whose user endpoint answers with a JSON
// object holding the email in field.
func NewJSONProvider(name string, cfg ProviderConfig, endpoint oauth2.Endpoint, userURL, field string) *Provider {
	return &Provider{
		Name: name,
		OAuth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		Email: func(ctx context.Context, c *oauth2.Config, tok *oauth2.Token) (string, error) {
			return fetchEmail(ctx, c.Client(ctx, tok), userURL, field)
		},
	}
}

func GitHubProvider(cfg ProviderConfig) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"user:email"}
	}
	return NewJSONProvider(ProviderGitHub, cfg, github.Endpoint, "https://api.github.com/user", "email")
}

func MicrosoftProvider(cfg ProviderConfig) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile", "User.Read"}
	}
	return NewJSONProvider(ProviderMicrosoft, cfg, microsoft.AzureADEndpoint("common"), "https://graph.microsoft.com/v1.0/me", "mail")
}

// OIDCProvider discovers issuer's endpoints and reads the email from its
// userinfo endpoint.
func OIDCProvider(ctx context.Context, issuer string, cfg ProviderConfig) (*Provider, error) {
	discovered, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc issuer %s: %w", issuer, err)
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	return &Provider{
		Name: ProviderOIDC,
		OAuth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint:     discovered.Endpoint(),
		},
		Email: func(ctx context.Context, c *oauth2.Config, tok *oauth2.Token) (string, error) {
			info, err := discovered.UserInfo(ctx, c.TokenSource(ctx, tok))
			if err != nil {
				return "", err
			}
			return info.Email, nil
		},
	}, nil
}

func fetchEmail(ctx context.Context, client *http.Client, userURL, field string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user endpoint returned %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	email, _ := body[field].(string)
	return email, nil
}

// provider returns the named provider configured for service.
func (s *AuthService) provider(service domain.Service, name string) (*Provider, oauth2.Config, error) {
	p, ok := s.Providers[name]
	if !ok {
		return nil, oauth2.Config{}, badRequest("oauth2 provider not configured")
	}
	redirect := service.OAuth2RedirectURLs[name]
	if redirect == "" {
		return nil, oauth2.Config{}, badRequest("oauth2 provider disabled for service")
	}
	cfg := p.OAuth2
	cfg.RedirectURL = redirect
	return p, cfg, nil
}

// OAuth2URL starts an authorization code flow with PKCE. The state is a
// csrf entry holding the code verifier, valid as long as an access token.
func (s *AuthService) OAuth2URL(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, providerName string,
) (out string, err error) {
	e := NewAuditEntry(meta, domain.AuditOAuth2URL)
	e.Subject = providerName
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return "", err
	}
	_, cfg, err := s.provider(service, providerName)
	if err != nil {
		return "", err
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}
	verifier := oauth2.GenerateVerifier()
	if _, err := s.Csrf.Create(ctx, service.ID, state, verifier, s.Tokens.accessTTL()); err != nil {
		return "", err
	}

	return cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

type OAuth2CallbackRequest struct {
	Code  string
	State string
}

// OAuth2Callback finishes a flow started by OAuth2URL and logs in the user
// with the provider's email. Users are never created here.
func (s *AuthService) OAuth2Callback(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, providerName string,
	req OAuth2CallbackRequest,
) (out domain.UserToken, err error) {
	e := NewAuditEntry(meta, domain.AuditOAuth2Callback)
	e.Subject = providerName
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	service, err := s.authService(ctx, e, keyValue)
	if err != nil {
		return out, err
	}
	p, cfg, err := s.provider(service, providerName)
	if err != nil {
		return out, err
	}
	if req.Code == "" {
		return out, badRequest("code required")
	}
	// The state must have been issued to this service.
	entry, err := s.Csrf.ConsumeFor(ctx, service.ID, req.State)
	if err != nil {
		return out, err
	}

	tok, err := cfg.Exchange(ctx, req.Code, oauth2.VerifierOption(entry.Value))
	if err != nil {
		return out, fmt.Errorf("%w: oauth2 exchange failed: %w", ErrBadRequest, err)
	}
	email, err := p.Email(ctx, &cfg, tok)
	if err != nil {
		return out, fmt.Errorf("%w: oauth2 user lookup failed: %w", ErrBadRequest, err)
	}
	if email, err = normaliseEmail(email); err != nil {
		return out, err
	}

	user, err := s.readUserByEmail(ctx, e, service, email)
	if err != nil {
		return out, err
	}
	key, err := s.readUserKey(ctx, e, user, domain.KeyTypeToken)
	if err != nil {
		return out, err
	}
	return s.Tokens.EncodeUserToken(ctx, service, user, key)
}
