package authsdk

import (
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// Client talks to the Shield HTTP API. It keeps the session and remember-me
// cookies in its jar.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Authorization, when set, is sent as the Authorization header on every
	// request, e.g. "Bearer <token>".
	Authorization string
}

// NewClient returns a client with a cookie jar and a ten second timeout.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
	}
}
