// Package archive is the thin client for the upstream observation
// archive: given a source identifier it returns the product listing the
// download engine turns into a job manifest.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skyforge/fitsflow/internal/logger"
	"github.com/skyforge/fitsflow/pkg/download"
)

// ErrSourceNotFound indicates the archive has no products for the
// requested source identifier.
var ErrSourceNotFound = errors.New("archive: source not found")

// product is one row of the archive's product listing.
type product struct {
	Filename string `json:"filename"`
	URI      string `json:"uri"`
	Size     int64  `json:"size"`
	Type     string `json:"type,omitempty"`
}

// listing is the archive's response document.
type listing struct {
	SourceID string    `json:"source_id"`
	Products []product `json:"products"`
}

// Client resolves manifests against an archive service over HTTP.
// Implements download.Resolver.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// New creates an archive client for the given base URL.
func New(baseURL string, requestTimeout time.Duration, opts ...ClientOption) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve fetches the product listing for sourceID and converts it to a
// download manifest. filters, when non-empty, keep only products whose
// type matches one of the given values.
func (c *Client) Resolve(ctx context.Context, sourceID string, filters []string) (download.Manifest, error) {
	endpoint := c.baseURL + "/products/" + url.PathEscape(sourceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return download.Manifest{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return download.Manifest{}, fmt.Errorf("archive request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return download.Manifest{}, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return download.Manifest{}, fmt.Errorf("archive returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var doc listing
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return download.Manifest{}, fmt.Errorf("failed to decode product listing: %w", err)
	}

	manifest := download.Manifest{SourceID: sourceID}
	for _, p := range doc.Products {
		if !matchesFilter(p.Type, filters) {
			continue
		}
		manifest.Files = append(manifest.Files, download.FileSpec{
			RemoteLocator: p.URI,
			Filename:      p.Filename,
			ExpectedSize:  p.Size,
		})
	}

	logger.InfoCtx(ctx, "manifest resolved",
		logger.KeySourceID, sourceID,
		"products", len(doc.Products),
		"selected", len(manifest.Files))
	return manifest, nil
}

// matchesFilter reports whether a product type passes the filter set. An
// empty filter set accepts everything.
func matchesFilter(productType string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.EqualFold(f, productType) {
			return true
		}
	}
	return false
}
