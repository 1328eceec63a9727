package authsdk

import (
	"context"
	"net/http"
)

// CreateToken mints a personal access token. The raw token is only
// returned here.
func (c *Client) CreateToken(ctx context.Context, req CreateTokenRequest) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/tokens", req)
	if err != nil {
		return nil, err
	}
	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeToken deletes one token by id, or all of them.
func (c *Client) RevokeToken(ctx context.Context, req RevokeTokenRequest) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/v1/tokens", req)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// IssueJWT mints a JWT for the logged in user.
func (c *Client) IssueJWT(ctx context.Context, req JWTRequest) (*JWTResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/jwt", req)
	if err != nil {
		return nil, err
	}
	var out JWTResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
