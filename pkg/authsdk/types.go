package authsdk

import (
	"time"

	"github.com/aussiebroadwan/shield/pkg/jwtx"
)

// UserResponse describes an account.
type UserResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username,omitempty"`
	Email       string     `json:"email,omitempty"`
	Active      bool       `json:"active"`
	LastActive  *time.Time `json:"last_active,omitempty"`
	Groups      []string   `json:"groups,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
}

// LoginRequest is the body of POST /v1/login. Either Email or Username is
// required.
type LoginRequest struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
	Remember bool   `json:"remember,omitempty"`
}

// LoginResponse is returned by the login endpoints. When Pending is set the
// session waits on that action and User is empty.
type LoginResponse struct {
	User    *UserResponse `json:"user,omitempty"`
	Pending string        `json:"pending,omitempty"`
}

// ActionRequest is the body of POST /v1/login/action.
type ActionRequest struct {
	Code string `json:"code"`
}

// MagicLinkRequest is the body of POST /v1/login/magic-link.
type MagicLinkRequest struct {
	Email string `json:"email"`
}

// RegisterRequest is the body of POST /v1/register.
type RegisterRequest struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// CreateTokenRequest is the body of POST /v1/tokens. No scopes means all.
type CreateTokenRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes,omitempty"`
}

// TokenResponse describes an access token. Token is only set on creation.
type TokenResponse struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Token  string   `json:"token,omitempty"`
	Scopes []string `json:"scopes"`
}

// RevokeTokenRequest is the body of DELETE /v1/tokens.
type RevokeTokenRequest struct {
	ID  string `json:"id,omitempty"`
	All bool   `json:"all,omitempty"`
}

// JWTRequest is the body of POST /v1/jwt.
type JWTRequest struct {
	// TTL in seconds; zero uses the server default.
	TTL int `json:"ttl,omitempty"`
}

// JWTResponse carries a signed JWT.
type JWTResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// HealthResponse is returned by /livez.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// JWKSResponse is the published key set.
type JWKSResponse = jwtx.JWKS
