package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

func (c *Client) login(ctx context.Context, method, path string, body any) (*LoginResponse, error) {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates with a password. A response with Pending set must be
// completed with VerifyAction.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	return c.login(ctx, http.MethodPost, "/v1/login", req)
}

// VerifyAction completes a pending second factor or activation.
func (c *Client) VerifyAction(ctx context.Context, code string) (*LoginResponse, error) {
	return c.login(ctx, http.MethodPost, "/v1/login/action", ActionRequest{Code: code})
}

// Register creates an account. When activation is required the response is
// pending on email_activate.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/register", req)
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusCreated, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestMagicLink asks for a login link to be mailed.
func (c *Client) RequestMagicLink(ctx context.Context, email string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/login/magic-link", MagicLinkRequest{Email: email})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// VerifyMagicLink exchanges a mailed token for a session.
func (c *Client) VerifyMagicLink(ctx context.Context, token string) (*LoginResponse, error) {
	return c.login(ctx, http.MethodGet, "/v1/login/magic-link/verify?token="+url.QueryEscape(token), nil)
}

// Logout ends the session and forgets the remember-me cookie.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/logout", nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// Me returns the authenticated user with groups and permissions.
func (c *Client) Me(ctx context.Context) (*UserResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/me", nil)
	if err != nil {
		return nil, err
	}
	var out UserResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
