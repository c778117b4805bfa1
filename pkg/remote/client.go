// Package remote implements the HTTP surface of a pull source: fetching the
// repo config, resolving branch heads and the refs summary, and building
// object URIs from the store's canonical object-path layout. Actual object
// bodies are downloaded by pkg/fetcher; this package only describes where
// to find them.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/mirrorstore/objsync/pkg/objid"
)

// ModeArchived is the only object-storage mode the pull engine can read:
// one file per object, addressable by a plain HTTP GET. Any other mode
// reported by the remote's config is rejected (spec §4.6 step 2).
const ModeArchived = "archive-z2"

// httpTimeout bounds every control-plane request (config, refs). Object
// bodies are downloaded by the fetcher, which applies its own timeouts.
const httpTimeout = 30 * time.Second

// ErrNotFound is returned for HTTP 404 responses from the remote.
var ErrNotFound = fmt.Errorf("remote: resource not found")

// ErrUnsupportedMode is returned when the remote's object-storage mode is
// not ModeArchived.
var ErrUnsupportedMode = fmt.Errorf("remote: unsupported object-storage mode")

// Client talks to a single remote's HTTP surface.
//
// Client is safe for concurrent use by multiple goroutines; the Main Loop
// is the only caller in practice, but nothing here assumes single-threaded
// access.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given base URL (e.g.
// "https://example.com/repo", with no trailing slash).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeout},
	}
}

// Config is the subset of the remote's key-file config the pull engine
// interprets: just enough to enforce ModeArchived.
type Config struct {
	Mode string
}

// FetchConfig downloads and parses "{base}/config".
func (c *Client) FetchConfig(ctx context.Context) (*Config, error) {
	body, err := c.getText(ctx, c.baseURL+"/config")
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	cfg, err := parseConfig(body)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func parseConfig(body string) (*Config, error) {
	f, err := ini.Load([]byte(body))
	if err != nil {
		return nil, err
	}
	return &Config{Mode: f.Section("core").Key("mode").String()}, nil
}

// RequireArchived returns ErrUnsupportedMode if cfg's mode is not archived.
func (cfg *Config) RequireArchived() error {
	if cfg.Mode != ModeArchived {
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, cfg.Mode)
	}
	return nil
}

// FetchBranchHead downloads "{base}/refs/heads/{branch}" and validates the
// checksum it contains.
func (c *Client) FetchBranchHead(ctx context.Context, branch string) (objid.Checksum, error) {
	body, err := c.getText(ctx, c.baseURL+"/refs/heads/"+branch)
	if err != nil {
		return objid.Checksum{}, fmt.Errorf("fetch branch head %s: %w", branch, err)
	}
	csum, err := objid.ParseChecksum(strings.TrimSpace(body))
	if err != nil {
		return objid.Checksum{}, fmt.Errorf("branch %s: %w", branch, err)
	}
	return csum, nil
}

// SummaryEntry is one ref reported by "{base}/refs/summary".
type SummaryEntry struct {
	Checksum objid.Checksum
	RefName  string
}

// FetchSummary downloads and parses "{base}/refs/summary".
func (c *Client) FetchSummary(ctx context.Context) ([]SummaryEntry, error) {
	body, err := c.getText(ctx, c.baseURL+"/refs/summary")
	if err != nil {
		return nil, fmt.Errorf("fetch summary: %w", err)
	}
	return ParseSummary(body)
}

// ParseSummary parses the refs/summary grammar: one "{checksum} {refname}"
// per non-empty line, split on "\n". A line with anything other than
// exactly one space, or an invalid checksum, is a validation error — the
// whole parse fails rather than skipping the bad line, so that a malformed
// summary aborts the pull before any fetch is dispatched.
func ParseSummary(body string) ([]SummaryEntry, error) {
	var entries []SummaryEntry
	for i, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, " ")
		if len(parts) != 2 {
			return nil, fmt.Errorf("summary line %d: want exactly one space, got %q", i+1, line)
		}
		csum, err := objid.ParseChecksum(parts[0])
		if err != nil {
			return nil, fmt.Errorf("summary line %d: %w", i+1, err)
		}
		if err := ValidateRefName(parts[1]); err != nil {
			return nil, fmt.Errorf("summary line %d: %w", i+1, err)
		}
		entries = append(entries, SummaryEntry{Checksum: csum, RefName: parts[1]})
	}
	return entries, nil
}

// ValidateRefName enforces the syntactic rules for a ref name: non-empty,
// no NUL bytes, no leading/trailing slash, and no ".." path segment. Unlike
// object filenames (pkg/objects.ValidateName), ref names are allowed to
// contain "/" (e.g. "release/2024").
func ValidateRefName(name string) error {
	if name == "" {
		return fmt.Errorf("empty ref name")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("ref name %q contains a NUL byte", name)
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("ref name %q has a leading or trailing slash", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("ref name %q contains an invalid path segment %q", name, seg)
		}
	}
	return nil
}

// ObjectURI builds the full URL for an object, given the store's canonical
// relative layout path for id. The remote must mirror the local store's
// layout convention (spec §6); layout is injected rather than recomputed
// here so the two sides can never silently disagree.
func (c *Client) ObjectURI(relativePath string) string {
	return c.baseURL + "/" + strings.TrimPrefix(relativePath, "/")
}

func (c *Client) getText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
