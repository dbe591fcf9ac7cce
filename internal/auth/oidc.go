package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/cooperapp/cooperapp/internal"
)

// IdentityProvider abstracts the OIDC relying-party flow so the service
// and tests never talk to a live issuer.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// OIDCProvider implements IdentityProvider against a real issuer using
// the authorization code flow with PKCE. Discovery happens at startup.
type OIDCProvider struct {
	relyingParty rp.RelyingParty
	timeout      time.Duration
}

func NewOIDCProvider(ctx context.Context, cfg internal.IdentityConfig) (*OIDCProvider, error) {
	httpClient := &http.Client{Timeout: cfg.ExchangeTimeout}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx,
		cfg.IssuerURL,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.CallbackURL,
		[]string{oidc.ScopeOpenID, oidc.ScopeProfile, oidc.ScopeEmail},
		rp.WithHTTPClient(httpClient),
		rp.WithPKCE(nil),
	)
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}

	return &OIDCProvider{
		relyingParty: relyingParty,
		timeout:      cfg.ExchangeTimeout,
	}, nil
}

func (p *OIDCProvider) AuthURL(state string) string {
	return rp.AuthURL(state, p.relyingParty)
}

// Exchange trades the authorization code for tokens and extracts the
// identity claims from the validated ID token.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](ctx, code, p.relyingParty)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}

	claims := tokens.IDTokenClaims
	if claims == nil || claims.Subject == "" {
		return nil, fmt.Errorf("id token missing subject")
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("id token missing email")
	}

	return &Identity{
		Subject:    claims.Subject,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
	}, nil
}
