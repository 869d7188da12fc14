package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Provider names a supported identity provider.
type Provider string

const (
	Google   Provider = "google"
	Facebook Provider = "facebook"
	Discord  Provider = "discord"
	GitHub   Provider = "github"
)

// Providers lists every supported provider.
var Providers = []Provider{Google, Facebook, Discord, GitHub}

// Valid reports whether p is supported.
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

var (
	ErrUnsupportedProvider = errors.New("oauth: unsupported provider")
	ErrProfileFetch        = errors.New("oauth: profile fetch failed")
	ErrExchange            = errors.New("oauth: code exchange failed")
)

// Profile is the identity a provider vouches for.
type Profile struct {
	Provider     Provider
	ProviderID   string
	Email        string
	Name         string
	ProviderData json.RawMessage
}

// Fetcher resolves a provider access token to a profile.
type Fetcher interface {
	FetchProfile(ctx context.Context, provider Provider, accessToken string) (*Profile, error)
}

// Endpoints are the user-info URLs called per provider.
type Endpoints struct {
	Google       string
	Facebook     string
	Discord      string
	GitHub       string
	GitHubEmails string
}

// DefaultEndpoints are the public provider APIs.
var DefaultEndpoints = Endpoints{
	Google:       "https://www.googleapis.com/oauth2/v3/userinfo",
	Facebook:     "https://graph.facebook.com/me",
	Discord:      "https://discord.com/api/users/@me",
	GitHub:       "https://api.github.com/user",
	GitHubEmails: "https://api.github.com/user/emails",
}

const defaultTimeout = 10 * time.Second

// Client fetches profiles over HTTP.
type Client struct {
	http      *http.Client
	endpoints Endpoints
}

// NewClient returns a client using DefaultEndpoints. A nil httpClient gets a
// client with a 10s timeout.
func NewClient(httpClient *http.Client) *Client {
	return NewClientWithEndpoints(httpClient, DefaultEndpoints)
}

// NewClientWithEndpoints is NewClient with explicit endpoints.
func NewClientWithEndpoints(httpClient *http.Client, endpoints Endpoints) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{http: httpClient, endpoints: endpoints}
}

// FetchProfile implements Fetcher.
func (c *Client) FetchProfile(ctx context.Context, provider Provider, accessToken string) (*Profile, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrProfileFetch)
	}
	switch provider {
	case Google:
		return c.google(ctx, accessToken)
	case Facebook:
		return c.facebook(ctx, accessToken)
	case Discord:
		return c.discord(ctx, accessToken)
	case GitHub:
		return c.github(ctx, accessToken)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}

func (c *Client) google(ctx context.Context, token string) (*Profile, error) {
	body, err := c.get(ctx, c.endpoints.Google, http.Header{"Authorization": {"Bearer " + token}})
	if err != nil {
		return nil, err
	}
	data := gjson.ParseBytes(body)
	return profile(Google, data.Get("sub").String(), data.Get("email").String(), data.Get("name").String(), map[string]any{
		"email":          data.Get("email").String(),
		"email_verified": data.Get("email_verified").Bool(),
		"name":           data.Get("name").String(),
		"picture":        data.Get("picture").String(),
		"given_name":     data.Get("given_name").String(),
		"family_name":    data.Get("family_name").String(),
		"locale":         data.Get("locale").String(),
	})
}

func (c *Client) facebook(ctx context.Context, token string) (*Profile, error) {
	u, err := url.Parse(c.endpoints.Facebook)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	q := u.Query()
	q.Set("fields", "id,email,name,first_name,last_name,picture")
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	data := gjson.ParseBytes(body)
	return profile(Facebook, data.Get("id").String(), data.Get("email").String(), data.Get("name").String(), map[string]any{
		"email":      data.Get("email").String(),
		"name":       data.Get("name").String(),
		"first_name": data.Get("first_name").String(),
		"last_name":  data.Get("last_name").String(),
		"picture":    data.Get("picture.data.url").String(),
	})
}

func (c *Client) discord(ctx context.Context, token string) (*Profile, error) {
	body, err := c.get(ctx, c.endpoints.Discord, http.Header{"Authorization": {"Bearer " + token}})
	if err != nil {
		return nil, err
	}
	data := gjson.ParseBytes(body)
	id := data.Get("id").String()
	var avatar any
	if hash := data.Get("avatar").String(); hash != "" {
		avatar = "https://cdn.discordapp.com/avatars/" + id + "/" + hash + ".png"
	}
	return profile(Discord, id, data.Get("email").String(), data.Get("username").String(), map[string]any{
		"id":            id,
		"username":      data.Get("username").String(),
		"discriminator": data.Get("discriminator").String(),
		"avatar":        avatar,
		"email":         data.Get("email").String(),
		"verified":      data.Get("verified").Bool(),
		"locale":        data.Get("locale").String(),
		"mfa_enabled":   data.Get("mfa_enabled").Bool(),
		"premium_type":  data.Get("premium_type").Int(),
	})
}

func (c *Client) github(ctx context.Context, token string) (*Profile, error) {
	headers := http.Header{
		"Authorization": {"token " + token},
		"Accept":        {"application/vnd.github.v3+json"},
	}
	body, err := c.get(ctx, c.endpoints.GitHub, headers)
	if err != nil {
		return nil, err
	}
	data := gjson.ParseBytes(body)

	// The profile email is often hidden; the primary address comes from
	// /user/emails when the token is allowed to read it.
	email := data.Get("email").String()
	if emails, err := c.get(ctx, c.endpoints.GitHubEmails, headers); err == nil {
		if primary := gjson.GetBytes(emails, "#(primary==true).email").String(); primary != "" {
			email = primary
		}
	}

	name := data.Get("name").String()
	if name == "" {
		name = data.Get("login").String()
	}
	return profile(GitHub, data.Get("id").String(), email, name, map[string]any{
		"id":           data.Get("id").Int(),
		"login":        data.Get("login").String(),
		"name":         data.Get("name").String(),
		"avatar_url":   data.Get("avatar_url").String(),
		"html_url":     data.Get("html_url").String(),
		"bio":          data.Get("bio").String(),
		"email":        email,
		"public_repos": data.Get("public_repos").Int(),
		"followers":    data.Get("followers").Int(),
		"following":    data.Get("following").Int(),
	})
}

func (c *Client) get(ctx context.Context, endpoint string, headers http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrProfileFetch, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s responded %s", ErrProfileFetch, req.URL.Host, resp.Status)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json from %s", ErrProfileFetch, req.URL.Host)
	}
	return body, nil
}

func profile(p Provider, id, email, name string, data map[string]any) (*Profile, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: %s profile has no id", ErrProfileFetch, p)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetch, err)
	}
	return &Profile{
		Provider:     p,
		ProviderID:   id,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         name,
		ProviderData: raw,
	}, nil
}
