package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"eduverse-client-go/internal/platform/errors"
)

// Grant is what a successful refresh or login hands back.
type Grant struct {
	Credential string
	Identity   *Identity
}

// Authority is the backend surface that issues and revokes credentials.
type Authority interface {
	// Refresh exchanges the cookie-held refresh secret for a new credential.
	Refresh(ctx context.Context) (Grant, error)
	// Identity fetches the principal for credential.
	Identity(ctx context.Context, credential string) (*Identity, error)
	// Logout ends the server-side session.
	Logout(ctx context.Context) error
	// Login exchanges username and password for a credential.
	Login(ctx context.Context, username, password string) (Grant, error)
}

// Paths locates the session endpoints relative to the client's base URL.
type Paths struct {
	Refresh  string
	Identity string
	Logout   string
	Login    string
}

// envelope is the backend's response wrapper; code 0 means success.
type envelope struct {
	Code        int             `json:"code"`
	Message     string          `json:"message,omitempty"`
	AccessToken string          `json:"accessToken,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// HTTPAuthority talks to the backend session endpoints. The refresh secret
// travels in an HTTP-only cookie held by the client's cookie jar.
type HTTPAuthority struct {
	client *resty.Client
	paths  Paths
}

// NewHTTPAuthority wires the authority onto a configured resty client.
func NewHTTPAuthority(client *resty.Client, paths Paths) *HTTPAuthority {
	return &HTTPAuthority{client: client, paths: paths}
}

func (a *HTTPAuthority) Refresh(ctx context.Context) (Grant, error) {
	resp, err := a.client.R().SetContext(ctx).Post(a.paths.Refresh)
	if err != nil {
		return Grant{}, errors.Wrap(errors.KindTransport, "auth.refresh", "refresh request failed", err)
	}
	return decodeGrant("auth.refresh", resp)
}

func (a *HTTPAuthority) Login(ctx context.Context, username, password string) (Grant, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"username": username, "password": password}).
		Post(a.paths.Login)
	if err != nil {
		return Grant{}, errors.Wrap(errors.KindTransport, "auth.login", "login request failed", err)
	}
	return decodeGrant("auth.login", resp)
}

func (a *HTTPAuthority) Identity(ctx context.Context, credential string) (*Identity, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(credential).
		Get(a.paths.Identity)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "auth.identity", "identity request failed", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, errors.New(errors.KindAuthExpired, "auth.identity", "credential rejected")
	}

	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "auth.identity", "malformed identity response", err)
	}
	if env.Code != 0 || len(env.Data) == 0 {
		return nil, errors.New(errors.KindDomain, "auth.identity", fmt.Sprintf("identity unavailable (code %d)", env.Code))
	}

	var identity Identity
	if err := sonic.Unmarshal(env.Data, &identity); err != nil {
		return nil, errors.Wrap(errors.KindTransport, "auth.identity", "malformed identity payload", err)
	}
	return &identity, nil
}

func (a *HTTPAuthority) Logout(ctx context.Context) error {
	resp, err := a.client.R().SetContext(ctx).Post(a.paths.Logout)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "auth.logout", "logout request failed", err)
	}
	if resp.IsError() {
		return errors.New(errors.KindTransport, "auth.logout", fmt.Sprintf("logout returned %d", resp.StatusCode()))
	}
	return nil
}

func decodeGrant(op string, resp *resty.Response) (Grant, error) {
	env, err := decodeEnvelope(resp)
	if err != nil {
		return Grant{}, errors.Wrap(errors.KindDomain, op, fmt.Sprintf("unexpected response (status %d)", resp.StatusCode()), err)
	}
	if resp.IsError() || env.Code != 0 || env.AccessToken == "" {
		msg := env.Message
		if msg == "" {
			msg = "no credential issued"
		}
		return Grant{}, errors.New(errors.KindDomain, op, fmt.Sprintf("%s (status %d, code %d)", msg, resp.StatusCode(), env.Code))
	}

	grant := Grant{Credential: env.AccessToken}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		var identity Identity
		if err := sonic.Unmarshal(env.Data, &identity); err == nil && (identity.ID != "" || identity.Username != "") {
			grant.Identity = &identity
		}
	}
	return grant, nil
}

func decodeEnvelope(resp *resty.Response) (envelope, error) {
	var env envelope
	body := resp.Body()
	if len(body) == 0 {
		return env, fmt.Errorf("empty body")
	}
	if err := sonic.Unmarshal(body, &env); err != nil {
		return env, err
	}
	return env, nil
}
