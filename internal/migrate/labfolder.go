// Package migrate pulls records out of a labfolder notebook and turns
// them into an import table. All labfolder access is read-only.
package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the hosted labfolder v2 API.
const DefaultBaseURL = "https://labfolder.labforward.app/api/v2"

const (
	projectPageLimit = 100
	entryPageLimit   = 50
)

// Project is a labfolder project, the container entries live in.
type Project struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// EntryElement points at one content block of an entry. Only TEXT
// elements carry migratable content.
type EntryElement struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Entry is one labfolder notebook entry.
type Entry struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	ProjectID    string         `json:"project_id"`
	CreationDate string         `json:"creation_date"`
	Tags         []string       `json:"tags"`
	Elements     []EntryElement `json:"elements"`
}

// Client is a minimal labfolder v2 API client: enough to log in and
// walk projects, entries and their text elements.
type Client struct {
	httpc   *http.Client
	baseURL string
	token   string
}

// ClientOption adjusts a Client before first use.
type ClientOption func(*Client)

// WithTimeout overrides the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpc.Timeout = d
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpc = hc
		}
	}
}

// NewClient builds a client against baseURL, or the hosted API when
// baseURL is empty.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for the bearer token all later calls
// carry.
func (c *Client) Login(ctx context.Context, email, password string) error {
	payload, err := json.Marshal(map[string]string{"user": email, "password": password})
	if err != nil {
		return fmt.Errorf("labfolder: encode login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("labfolder: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("labfolder: login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("labfolder: login failed (%d): %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("labfolder: decode login response: %w", err)
	}
	c.token = strings.TrimSpace(out.Token)
	if c.token == "" {
		return errors.New("labfolder: login response carried no token")
	}
	return nil
}

// Logout invalidates the token server-side. Calling it without a prior
// login is a no-op.
func (c *Client) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("labfolder: build logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	c.token = ""

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("labfolder: logout: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("labfolder: logout failed (%d)", resp.StatusCode)
	}
	return nil
}

// Projects returns every project visible to the account, hidden ones
// included.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var all []Project
	for offset := 0; ; offset += projectPageLimit {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(projectPageLimit))
		q.Set("offset", strconv.Itoa(offset))
		q.Set("include_hidden", "true")

		var page []Project
		if err := c.get(ctx, "projects", q, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < projectPageLimit {
			return all, nil
		}
	}
}

// Entries returns every entry the account can see.
func (c *Client) Entries(ctx context.Context) ([]Entry, error) {
	var all []Entry
	for offset := 0; ; offset += entryPageLimit {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(entryPageLimit))
		q.Set("offset", strconv.Itoa(offset))

		var page []Entry
		if err := c.get(ctx, "entries", q, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < entryPageLimit {
			return all, nil
		}
	}
}

// TextContent fetches the HTML content of one TEXT element.
func (c *Client) TextContent(ctx context.Context, elementID string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := c.get(ctx, "elements/text/"+elementID, nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// get performs an authorized GET and decodes the JSON answer into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("labfolder: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("labfolder: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("labfolder: GET %s failed (%d): %s", path, resp.StatusCode, readErrorBody(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("labfolder: decode %s: %w", path, err)
	}
	return nil
}

// readErrorBody drains a bounded slice of an error response for the
// message.
func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(b))
}
