// Package api calls the reservation service's authentication endpoints.
// Requests go through whatever http.Client it is given; the session manager
// hands it one wired with the session transport.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-campus-session/sessionmodel"
)

// Config controls how the client reaches the API.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client issues login, identity and logout calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// LoginResponse is the decoded POST /auth/login reply. The credential may be
// in the body or only in Cookies.
type LoginResponse struct {
	Status     int
	Profile    *sessionmodel.Profile
	Credential string
	Cookies    []*http.Cookie
}

type loginPayload struct {
	User        *sessionmodel.Profile `json:"user"`
	Profile     *sessionmodel.Profile `json:"profile"`
	Credential  string                `json:"credential"`
	Token       string                `json:"token"`
	AccessToken string                `json:"accessToken"`
}

// NewClient validates the configuration and returns a ready-to-use Client.
func NewClient(cfg Config) (*Client, error) {
	base, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: base, httpClient: httpClient}, nil
}

// BaseURL returns the normalised API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges an email and password for a session.
func (c *Client) Login(ctx context.Context, creds sessionmodel.LoginRequest) (*LoginResponse, error) {
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return nil, errors.Wrap(sessionmodel.ErrInvalidInput, "email and password required")
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, RouteAuthLogin, creds)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError("login", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp)
	}

	out := &LoginResponse{Status: resp.StatusCode, Cookies: resp.Cookies()}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &sessionmodel.NetworkError{Op: "login", Cause: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	var payload loginPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrapf(sessionmodel.ErrUnknown, "decode login response: %v", err)
	}
	out.Profile = payload.User
	if out.Profile == nil {
		out.Profile = payload.Profile
	}
	for _, candidate := range []string{payload.Credential, payload.Token, payload.AccessToken} {
		if strings.TrimSpace(candidate) != "" {
			out.Credential = strings.TrimSpace(candidate)
			break
		}
	}
	return out, nil
}

// MyInfo fetches the signed in user's profile.
func (c *Client) MyInfo(ctx context.Context) (sessionmodel.Profile, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, RouteAuthMyInfo, nil)
	if err != nil {
		return sessionmodel.Profile{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sessionmodel.Profile{}, classifyTransportError("myInfo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return sessionmodel.Profile{}, decodeAPIError(resp)
	}
	var profile sessionmodel.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return sessionmodel.Profile{}, errors.Wrapf(sessionmodel.ErrUnknown, "decode profile: %v", err)
	}
	return profile, nil
}

// Logout asks the server to revoke the current session.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newJSONRequest(ctx, http.MethodGet, RouteAuthLogout, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError("logout", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("api: base URL required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", errors.Wrap(err, "api: invalid base URL")
	}
	if u.Scheme == "" {
		return "", errors.New("api: base URL missing scheme (http/https)")
	}
	if u.Host == "" {
		return "", errors.New("api: base URL missing host")
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}
