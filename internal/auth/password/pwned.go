package password

import (
	"bufio"
	"context"
	"crypto/sha1" // #nosec G505 - required by the range API, not used for secrecy
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultPwnedURL is the Have I Been Pwned k-anonymity range endpoint.
const DefaultPwnedURL = "https://api.pwnedpasswords.com/range/"

// PwnedClient looks passwords up in the Have I Been Pwned corpus. Only the
// first five hex characters of the SHA-1 digest leave the process.
type PwnedClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewPwnedClient returns a client with a short timeout. A nil client uses its own.
func NewPwnedClient(client *http.Client) *PwnedClient {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &PwnedClient{BaseURL: DefaultPwnedURL, HTTP: client}
}

// Count returns how many times password appears in the corpus.
func (c *PwnedClient) Count(ctx context.Context, password string) (int, error) {
	sum := sha1.Sum([]byte(password)) // #nosec G401
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+prefix, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Add-Padding", "true")
	req.Header.Set("User-Agent", "shield-password-policy")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pwned range request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pwned range request: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		hash, count, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok || !strings.EqualFold(hash, suffix) {
			continue
		}
		n, err := strconv.Atoi(count)
		if err != nil {
			return 0, fmt.Errorf("pwned range response: %w", err)
		}
		return n, nil
	}
	return 0, scanner.Err()
}
