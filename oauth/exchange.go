package oauth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// ProviderCredentials configure the authorization-code exchange for one
// provider.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenURL     string
}

// DefaultTokenURLs are the providers' token endpoints.
var DefaultTokenURLs = map[Provider]string{
	Google:   "https://oauth2.googleapis.com/token",
	Facebook: "https://graph.facebook.com/v18.0/oauth/access_token",
	Discord:  "https://discord.com/api/oauth2/token",
	GitHub:   "https://github.com/login/oauth/access_token",
}

// Exchanger swaps authorization codes for access tokens.
type Exchanger struct {
	http    *http.Client
	configs map[Provider]*oauth2.Config
}

// NewExchanger builds one oauth2.Config per configured provider. Providers
// without a client id are left out.
func NewExchanger(httpClient *http.Client, creds map[Provider]ProviderCredentials) *Exchanger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	configs := make(map[Provider]*oauth2.Config, len(creds))
	for p, c := range creds {
		if c.ClientID == "" {
			continue
		}
		tokenURL := c.TokenURL
		if tokenURL == "" {
			tokenURL = DefaultTokenURLs[p]
		}
		configs[p] = &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	}
	return &Exchanger{http: httpClient, configs: configs}
}

// Configured reports whether provider can exchange codes.
func (e *Exchanger) Configured(provider Provider) bool {
	if e == nil {
		return false
	}
	_, ok := e.configs[provider]
	return ok
}

// RedirectURL is the redirect URI registered for provider.
func (e *Exchanger) RedirectURL(provider Provider) string {
	if cfg, ok := e.configs[provider]; ok {
		return cfg.RedirectURL
	}
	return ""
}

// Exchange returns the provider access token for code.
func (e *Exchanger) Exchange(ctx context.Context, provider Provider, code string) (string, error) {
	if e == nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	cfg, ok := e.configs[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.http)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchange, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrExchange)
	}
	return tok.AccessToken, nil
}
