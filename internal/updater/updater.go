// Package updater checks GitHub for a newer released build and can
// download its platform asset. It never installs anything: the user
// decides what to do with the downloaded file.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
)

// DefaultTimeout bounds the release check and the asset download.
const DefaultTimeout = 10 * time.Second

// ErrNoReleases means the repository has never published a release.
var ErrNoReleases = errors.New("no published releases")

// Info describes the outcome of one release check.
type Info struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	NotModified     bool // ETag matched; nothing was fetched

	AssetName    string // Platform asset picked from the release, if any
	DownloadURL  string
	ReleaseNotes string
	HTMLURL      string
	PublishedAt  time.Time

	// ETag of the release payload. Passing it to the next Check turns
	// an unchanged release into a NotModified answer that does not
	// count against the GitHub rate limit.
	ETag string
}

// Checker queries one GitHub repository for releases.
type Checker struct {
	gh    *gh.Client
	httpc *http.Client

	owner string
	repo  string
	exts  []string

	token   string
	baseURL string
}

// Option adjusts a Checker before first use.
type Option func(*Checker)

// WithToken authenticates release checks, lifting the anonymous rate
// limit. Public release data needs no token.
func WithToken(token string) Option {
	return func(c *Checker) { c.token = token }
}

// WithTimeout overrides the HTTP timeout for checks and downloads.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.httpc.Timeout = d
		}
	}
}

// WithPreferredExts overrides the asset extension preference order.
func WithPreferredExts(exts ...string) Option {
	return func(c *Checker) { c.exts = exts }
}

// WithAPIBaseURL points the checker at a different API endpoint.
func WithAPIBaseURL(raw string) Option {
	return func(c *Checker) { c.baseURL = raw }
}

// New builds a checker for the given "owner/name" repository.
func New(repo string, opts ...Option) (*Checker, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("updater: repository must be owner/name, got %q", repo)
	}

	c := &Checker{
		owner: owner,
		repo:  name,
		exts:  defaultPreferredExts(),
		httpc: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.gh = gh.NewClient(c.httpc)
	if c.token != "" {
		c.gh = c.gh.WithAuthToken(c.token)
	}
	if c.baseURL != "" {
		u, err := url.Parse(c.baseURL)
		if err != nil {
			return nil, fmt.Errorf("updater: parse API base URL: %w", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		c.gh.BaseURL = u
	}
	return c, nil
}

// defaultPreferredExts orders release asset extensions for the running
// platform.
func defaultPreferredExts() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{".dmg", ".zip", ".tar.gz"}
	case "windows":
		return []string{".exe", ".zip"}
	default:
		return []string{".tar.gz", ".zip"}
	}
}

// Check fetches the latest release and compares its tag to current.
// Pass the ETag of a previous check to skip the fetch when the release
// has not changed; the answer then has NotModified set.
func (c *Checker) Check(ctx context.Context, current, etag string) (*Info, error) {
	u := fmt.Sprintf("repos/%s/%s/releases/latest", c.owner, c.repo)
	req, err := c.gh.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("updater: build request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	release := new(gh.RepositoryRelease)
	resp, err := c.gh.Do(ctx, req, release)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusNotModified:
				return &Info{
					CurrentVersion: current,
					LatestVersion:  current,
					NotModified:    true,
					ETag:           etag,
				}, nil
			case http.StatusNotFound:
				return nil, ErrNoReleases
			}
		}
		return nil, fmt.Errorf("updater: fetch latest release: %w", err)
	}

	latest := strings.TrimSpace(release.GetTagName())
	if latest == "" {
		latest = current
	}
	assetName, assetURL := pickAsset(release.Assets, c.exts)

	info := &Info{
		CurrentVersion:  current,
		LatestVersion:   latest,
		UpdateAvailable: CompareVersions(current, latest) < 0,
		AssetName:       assetName,
		DownloadURL:     assetURL,
		ReleaseNotes:    release.GetBody(),
		HTMLURL:         release.GetHTMLURL(),
		ETag:            resp.Header.Get("ETag"),
	}
	if ts := release.GetPublishedAt(); !ts.IsZero() {
		info.PublishedAt = ts.Time
	}
	return info, nil
}

// pickAsset chooses the asset to offer: the first one matching the
// preferred extensions in order, otherwise the first one that has a
// download URL at all.
func pickAsset(assets []*gh.ReleaseAsset, preferred []string) (name, downloadURL string) {
	for _, ext := range preferred {
		for _, a := range assets {
			n := a.GetName()
			if strings.HasSuffix(strings.ToLower(n), ext) && a.GetBrowserDownloadURL() != "" {
				return n, a.GetBrowserDownloadURL()
			}
		}
	}
	for _, a := range assets {
		if a.GetBrowserDownloadURL() != "" {
			return a.GetName(), a.GetBrowserDownloadURL()
		}
	}
	return "", ""
}

// Download streams the asset at rawURL to dest, creating parent
// directories as needed. A partial file is removed on failure.
func (c *Checker) Download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("updater: build download request: %w", err)
	}

	// Downloads can far outlive the check timeout; the context bounds
	// them instead of the client deadline.
	dl := &http.Client{Transport: c.httpc.Transport}
	resp, err := dl.Do(req)
	if err != nil {
		return fmt.Errorf("updater: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("updater: download: unexpected status %s", resp.Status)
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("updater: create download dir: %w", err)
		}
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("updater: create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("updater: write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("updater: write %s: %w", dest, err)
	}
	return nil
}

// CompareVersions orders two version strings, ignoring any v prefix.
// It returns -1 when a is older than b, 0 when equal and 1 when newer.
// Parts split on ".", "-" and "+"; numeric parts compare numerically,
// words lexically, and a release outranks its own pre-releases
// ("1.2.0" is newer than "1.2.0-rc1").
func CompareVersions(a, b string) int {
	pa, pb := versionParts(a), versionParts(b)
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y string
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if c := compareVersionPart(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func versionParts(v string) []string {
	v = strings.TrimLeft(strings.TrimSpace(v), "vV")
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-' || r == '+'
	})
}

// compareVersionPart ranks numbers above everything, the absent part
// above pre-release words, and words case-insensitively.
func compareVersionPart(x, y string) int {
	xn, xErr := strconv.Atoi(x)
	yn, yErr := strconv.Atoi(y)
	switch {
	case xErr == nil && yErr == nil:
		switch {
		case xn < yn:
			return -1
		case xn > yn:
			return 1
		}
		return 0
	case xErr == nil:
		return 1
	case yErr == nil:
		return -1
	case x == y:
		return 0
	case x == "":
		return 1
	case y == "":
		return -1
	default:
		return strings.Compare(strings.ToLower(x), strings.ToLower(y))
	}
}
