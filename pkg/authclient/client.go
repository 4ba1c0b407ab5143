package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const refreshCookie = "refreshToken"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(authServiceURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(authServiceURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	LastName    string   `json:"lastName"`
	FirstName   string   `json:"firstName"`
	Login       string   `json:"login"`
	Roles       []string `json:"roles"`
	IsActivated bool     `json:"isActivated"`
}

type AuthResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         User     `json:"user"`
	Warnings     []string `json:"warnings,omitempty"`
}

type RegisterRequest struct {
	LastName  string `json:"lastName"`
	FirstName string `json:"firstName"`
	Email     string `json:"email"`
	Login     string `json:"login"`
	Password  string `json:"password"`
}

// APIError is returned for every non-2xx answer of the service.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service: %d %s: %s", e.Status, e.Code, e.Message)
}

func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func (c *Client) Register(ctx context.Context, in RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/user/registration", in, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login treats an identity containing "@" as an email and anything else as a login.
func (c *Client) Login(ctx context.Context, identity, password string) (*AuthResponse, error) {
	body := map[string]string{"password": password}
	if strings.Contains(identity, "@") {
		body["email"] = identity
	} else {
		body["login"] = identity
	}

	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/user/login", body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/user/refresh", nil, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: refreshCookie, Value: refreshToken})
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout returns the number of sessions the service removed.
func (c *Client) Logout(ctx context.Context, refreshToken string) (int64, error) {
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	err := c.do(ctx, http.MethodPost, "/api/user/logout", nil, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: refreshCookie, Value: refreshToken})
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) ListUsers(ctx context.Context, accessToken string) ([]User, error) {
	var out []User
	err := c.do(ctx, http.MethodGet, "/api/user/", nil, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, prepare func(*http.Request), out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prepare != nil {
		prepare(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
