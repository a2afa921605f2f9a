// Package earthengine talks to the Earth Engine REST API. Collections are
// filtered remotely and bands are downloaded once as GeoTIFF; every other
// imagery operation runs on the local engine.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest-guardian/landsat-lst/internal/cache"
	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var (
	ErrAuthentication = errors.New("earth engine authentication failed")
	ErrTooManyPixels  = errors.New("requested grid exceeds the pixel budget")
	ErrNotInitialized = errors.New("earth engine client is not initialized")
)

const Scope = "https://www.googleapis.com/auth/earthengine"

type Options struct {
	BaseURL            string
	Project            string
	TokenURL           string
	ServiceAccountFile string
	ClientID           string
	ClientSecret       string
	// Collection is the asset used for the initialization handshake.
	Collection          string
	CacheDir            string
	ListingTTL          time.Duration
	DownloadConcurrency int
	HTTPClient          *http.Client
	Local               imagery.Local
}

// APIError is a non-2xx answer of the REST API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("earth engine api error %d %s: %s", e.StatusCode, e.Status, e.Message)
}

type Client struct {
	imagery.Local

	opts     Options
	base     *http.Client
	http     *http.Client
	tokens   *cache.FileCache[oauth2.Token]
	listings *cache.FileCache[[]imagery.Scene]
	log      *logrus.Entry
}

var _ imagery.Service = (*Client)(nil)

func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if opts.DownloadConcurrency <= 0 {
		opts.DownloadConcurrency = 4
	}
	if opts.Project == "" {
		opts.Project = "earthengine-public"
	}
	if opts.Collection == "" {
		opts.Collection = "LANDSAT/LC09/C02/T1_TOA"
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &Client{
		Local:    opts.Local,
		opts:     opts,
		base:     opts.HTTPClient,
		tokens:   cache.NewFileCache[oauth2.Token](filepath.Join(opts.CacheDir, "tokens"), 0),
		listings: cache.NewFileCache[[]imagery.Scene](filepath.Join(opts.CacheDir, "listings"), opts.ListingTTL),
		log:      logrus.WithField("component", "earthengine"),
	}
}

// Initialize connects with the cached credentials. When that fails it
// authenticates from the configured credentials and tries exactly once more.
func (c *Client) Initialize(ctx context.Context) error {
	err := c.connect(ctx, c.cachedTokenSource(), c.refreshingTokenSource(ctx))
	if err == nil {
		c.log.Info("earth engine has been initialized with cached credentials")
		return nil
	}
	c.log.WithError(err).Warn("earth engine initialization failed, authenticating")

	key := c.tokenKey()
	if err := c.tokens.Delete(key); err != nil {
		c.log.WithError(err).Warn("failed to drop cached token")
	}
	ts, err := c.authenticate(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if err := c.connect(ctx, ts, ts); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	c.log.Info("earth engine has been initialized")
	return nil
}

// connect takes the first token from ts and later ones from refresh.
func (c *Client) connect(ctx context.Context, ts, refresh oauth2.TokenSource) error {
	tok, err := ts.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}
	authorized := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c.base), oauth2.ReuseTokenSource(tok, refresh))
	authorized.Timeout = c.base.Timeout

	var asset struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := c.doJSON(ctx, authorized, http.MethodGet, c.assetURL(c.opts.Collection), nil, &asset); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	c.http = authorized
	if err := c.tokens.Set(c.tokenKey(), *tok); err != nil {
		c.log.WithError(err).Warn("failed to cache token")
	}
	c.log.WithFields(logrus.Fields{"asset": asset.ID, "type": asset.Type}).Debug("handshake succeeded")
	return nil
}

func (c *Client) assetURL(assetID string) string {
	return fmt.Sprintf("%s/projects/%s/assets/%s", c.opts.BaseURL, c.opts.Project, assetID)
}

func (c *Client) authorized() (*http.Client, error) {
	if c.http == nil {
		return nil, ErrNotInitialized
	}
	return c.http, nil
}

func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, rawURL string, body, out interface{}) error {
	resp, err := c.do(ctx, hc, method, rawURL, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response of %s: %w", redact(rawURL), err)
	}
	return nil
}

// do sends the request and returns the response when the status is 2xx. The
// caller owns the body.
func (c *Client) do(ctx context.Context, hc *http.Client, method, rawURL string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", redact(rawURL), err)
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeAPIError(resp)
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(data))}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		if envelope.Error.Status != "" {
			apiErr.Status = envelope.Error.Status
		}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %v", ErrAuthentication, apiErr)
	}
	return apiErr
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}
