// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// Package onedrive stores audit photos in a OneDrive folder through the
// Microsoft Graph API, authenticating with a long-lived refresh token.
package onedrive

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fieldops/fieldaudit/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"
)

// Scope requested for every access token.
const Scope = "https://graph.microsoft.com/Files.ReadWrite"

// tokenEarlyExpiry makes cached access tokens refresh before Graph rejects them.
const tokenEarlyExpiry = 5 * time.Minute

const downloadTimeout = 30 * time.Second

var (
	ErrNotFound    = errors.New("onedrive: item not found")
	ErrNoDownload  = errors.New("onedrive: no download url available")
	ErrNotSharable = errors.New("onedrive: sharing url could not be resolved")
)

// APIError is a non-success response from Graph.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("onedrive %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Config holds the Graph endpoints and app credentials.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	RootFolder   string
	GraphURL     string
	AuthURL      string
	// HTTPClient is the base client for token and Graph calls. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Item is the subset of a Graph driveItem used by the service.
type Item struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Size                 int64  `json:"size"`
	WebURL               string `json:"webUrl"`
	DownloadURL          string `json:"@microsoft.graph.downloadUrl"`
	CreatedDateTime      string `json:"createdDateTime"`
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
}

// Client talks to one user's drive.
type Client struct {
	graphURL   string
	root       string
	api        *http.Client // bearer-authenticated
	noRedirect *http.Client // bearer-authenticated, redirects surfaced
	plain      *http.Client // pre-authenticated download urls
	metrics    *Metrics
}

// New builds a Client. Tokens are fetched lazily on the first call.
func New(cfg Config, reg prometheus.Registerer) *Client {
	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(cfg.AuthURL, "/") + "/" + cfg.TenantID + "/oauth2/v2.0/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: []string{Scope},
	}
	src := oauth2.ReuseTokenSourceWithExpiry(nil, &refresher{ctx: ctx, conf: conf, refreshToken: cfg.RefreshToken}, tokenEarlyExpiry)
	transport := &oauth2.Transport{Source: src, Base: base.Transport}

	return &Client{
		graphURL: strings.TrimRight(cfg.GraphURL, "/"),
		root:     strings.Trim(cfg.RootFolder, "/"),
		api:      &http.Client{Transport: transport},
		noRedirect: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		plain:   &http.Client{Transport: base.Transport, Timeout: downloadTimeout},
		metrics: NewMetrics(reg),
	}
}

// refresher exchanges the refresh token on every call; caching is done by
// the reuse source wrapped around it. Graph may rotate the refresh token, so
// the latest one is kept.
type refresher struct {
	ctx          context.Context
	conf         *oauth2.Config
	mu           sync.Mutex
	refreshToken string
}

func (r *refresher) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logging.Debugf("refreshing onedrive access token")
	tok, err := r.conf.TokenSource(r.ctx, &oauth2.Token{RefreshToken: r.refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("get onedrive access token: %w", err)
	}
	if tok.RefreshToken != "" {
		r.refreshToken = tok.RefreshToken
	}
	return tok, nil
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func (c *Client) rootPath(rel string) string {
	p := c.root
	if rel = strings.Trim(rel, "/"); rel != "" {
		if p != "" {
			p += "/"
		}
		p += rel
	}
	return p
}

func (c *Client) do(ctx context.Context, hc *http.Client, op, method, u string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("onedrive %s: %w", op, err)
	}
	return resp, nil
}

func apiError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(string(b)))
	}
	return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func (c *Client) getItem(ctx context.Context, op, u string) (*Item, error) {
	resp, err := c.do(ctx, c.api, op, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(op, resp)
	}
	var it Item
	if err := json.NewDecoder(resp.Body).Decode(&it); err != nil {
		return nil, fmt.Errorf("onedrive %s: decode: %w", op, err)
	}
	return &it, nil
}

// Upload stores data as name inside folder (relative to the root folder).
func (c *Client) Upload(ctx context.Context, data []byte, name, folder string) (*Item, error) {
	u := fmt.Sprintf("%s/me/drive/root:/%s:/content", c.graphURL, escapePath(c.rootPath(folder+"/"+name)))
	logging.Debugf("uploading %s to onedrive", name)
	resp, err := c.do(ctx, c.api, "upload", http.MethodPut, u, bytes.NewReader(data), "application/octet-stream")
	if err != nil {
		c.metrics.observe("upload", err)
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err := apiError("upload", resp)
		c.metrics.observe("upload", err)
		return nil, err
	}
	var it Item
	if err := json.NewDecoder(resp.Body).Decode(&it); err != nil {
		c.metrics.observe("upload", err)
		return nil, fmt.Errorf("onedrive upload: decode: %w", err)
	}
	c.metrics.observe("upload", nil)
	return &it, nil
}

// EnsureFolder creates each missing segment of folder under the root.
func (c *Client) EnsureFolder(ctx context.Context, folder string) error {
	var parent string
	for _, seg := range strings.Split(strings.Trim(folder, "/"), "/") {
		if seg == "" {
			continue
		}
		current := seg
		if parent != "" {
			current = parent + "/" + seg
		}
		_, err := c.getItem(ctx, "stat folder", fmt.Sprintf("%s/me/drive/root:/%s", c.graphURL, escapePath(c.rootPath(current))))
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			if err := c.createFolder(ctx, parent, seg); err != nil {
				return err
			}
		default:
			return err
		}
		parent = current
	}
	return nil
}

func (c *Client) createFolder(ctx context.Context, parent, name string) error {
	var u string
	if p := c.rootPath(parent); p == "" {
		u = c.graphURL + "/me/drive/root/children"
	} else {
		u = fmt.Sprintf("%s/me/drive/root:/%s:/children", c.graphURL, escapePath(p))
	}
	body, _ := json.Marshal(map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "fail",
	})
	resp, err := c.do(ctx, c.api, "create folder", http.MethodPost, u, bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		logging.Infof("onedrive folder created: %s", c.rootPath(parent+"/"+name))
		return nil
	case http.StatusConflict:
		return nil
	default:
		return apiError("create folder", resp)
	}
}

// IsSharingURL reports whether ref is a SharePoint sharing link rather than
// a drive item id.
func IsSharingURL(ref string) bool {
	return strings.Contains(ref, "sharepoint.com")
}

// EncodeSharingURL builds the share id Graph expects for a sharing link.
func EncodeSharingURL(sharingURL string) string {
	return "u!" + base64.RawURLEncoding.EncodeToString([]byte(sharingURL))
}

// ResolveSharingURL looks up the drive item behind a sharing link.
func (c *Client) ResolveSharingURL(ctx context.Context, sharingURL string) (*Item, error) {
	it, err := c.getItem(ctx, "resolve share", fmt.Sprintf("%s/shares/%s/driveItem", c.graphURL, EncodeSharingURL(sharingURL)))
	c.metrics.observe("resolve", err)
	if err != nil {
		return nil, err
	}
	if it.ID == "" {
		return nil, ErrNotSharable
	}
	return it, nil
}

// FileInfo returns metadata for a file id or sharing link.
func (c *Client) FileInfo(ctx context.Context, ref string) (*Item, error) {
	if IsSharingURL(ref) {
		return c.ResolveSharingURL(ctx, ref)
	}
	return c.getItem(ctx, "file info", c.itemURL(ref))
}

func (c *Client) itemURL(id string) string {
	return fmt.Sprintf("%s/me/drive/items/%s", c.graphURL, url.PathEscape(id))
}

// ValidateFileID reports whether the id is reachable through either of the
// drive item endpoints Graph exposes for the signed-in user.
func (c *Client) ValidateFileID(ctx context.Context, id string) (bool, error) {
	endpoints := []string{
		c.itemURL(id),
		fmt.Sprintf("%s/drives/me/items/%s", c.graphURL, url.PathEscape(id)),
	}
	var lastErr error
	for _, u := range endpoints {
		_, err := c.getItem(ctx, "validate", u)
		if err == nil {
			return true, nil
		}
		logging.Debugf("onedrive validate %s: %v", u, err)
		lastErr = err
	}
	if errors.Is(lastErr, ErrNotFound) {
		return false, nil
	}
	return false, lastErr
}

// DownloadURL returns a pre-authenticated URL for the file content.
func (c *Client) DownloadURL(ctx context.Context, id string) (string, error) {
	it, err := c.getItem(ctx, "item", c.itemURL(id))
	if err != nil {
		return "", err
	}
	if it.DownloadURL != "" {
		return it.DownloadURL, nil
	}
	resp, err := c.do(ctx, c.noRedirect, "content", http.MethodHead, c.itemURL(id)+"/content", nil, "")
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusFound {
		if loc := resp.Header.Get("Location"); loc != "" {
			return loc, nil
		}
	}
	return "", ErrNoDownload
}

// Download fetches the content of a file id or sharing link.
func (c *Client) Download(ctx context.Context, ref string) ([]byte, error) {
	data, err := c.download(ctx, ref)
	c.metrics.observe("download", err)
	return data, err
}

func (c *Client) download(ctx context.Context, ref string) ([]byte, error) {
	id := ref
	if IsSharingURL(ref) {
		it, err := c.ResolveSharingURL(ctx, ref)
		if err != nil {
			return nil, err
		}
		id = it.ID
	}
	u, err := c.DownloadURL(ctx, id)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, c.plain, "download", http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("download", resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("onedrive download: %w", err)
	}
	return data, nil
}

// Delete removes a file by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.do(ctx, c.api, "delete", http.MethodDelete, c.itemURL(id), nil, "")
	if err != nil {
		c.metrics.observe("delete", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		err = apiError("delete", resp)
	}
	c.metrics.observe("delete", err)
	return err
}
