// Package client provides a Go client for the Verisource API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a Verisource API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new Verisource client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ResolveOptions selects the network and verifier of a lookup. Empty
// fields use the server defaults.
type ResolveOptions struct {
	Network  string
	Verifier string
}

// Pointer is the on-chain record of a code hash
type Pointer struct {
	CodeHash      string `json:"codeHash"`
	Network       string `json:"network"`
	Verifier      string `json:"verifier"`
	RecordAddress string `json:"recordAddress"`
	ManifestURI   string `json:"manifestUri"`
	BlockSeqNo    uint32 `json:"blockSeqNo"`
}

// File is one verified source file
type File struct {
	Name         string `json:"name"`
	Content      string `json:"content"`
	IsEntrypoint bool   `json:"isEntrypoint"`
}

// Sources is the verified source bundle of a code hash
type Sources struct {
	Pointer
	Files            []File          `json:"files"`
	Compiler         string          `json:"compiler"`
	CompilerVersion  string          `json:"compilerVersion,omitempty"`
	CompilerSettings json.RawMessage `json:"compilerSettings,omitempty"`
	VerificationDate time.Time       `json:"verificationDate"`
	IPFSHttpLink     string          `json:"ipfsHttpLink"`
}

// Lookup is one entry of the server's resolution log
type Lookup struct {
	ID            string    `json:"id"`
	CodeHash      string    `json:"codeHash"`
	Network       string    `json:"network"`
	Verifier      string    `json:"verifier"`
	Status        string    `json:"status"`
	RecordAddress string    `json:"recordAddress,omitempty"`
	ManifestURI   string    `json:"manifestUri,omitempty"`
	FileCount     int       `json:"fileCount"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LookupsQuery filters and pages the resolution log
type LookupsQuery struct {
	Status   string
	Network  string
	CodeHash string
	Limit    int
	Cursor   string
}

// ListLookupsResponse is the response for listing lookups
type ListLookupsResponse struct {
	Data       []Lookup   `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err means the code hash has no verified source.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// GetSources resolves the verified sources of a code hash (hex or base64)
func (c *Client) GetSources(ctx context.Context, codeHash string, opts ResolveOptions) (*Sources, error) {
	var resp Sources
	if err := c.get(ctx, sourcesPath(codeHash, "", opts), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetManifestURI returns the on-chain record of a code hash without
// fetching its sources
func (c *Client) GetManifestURI(ctx context.Context, codeHash string, opts ResolveOptions) (*Pointer, error) {
	var resp Pointer
	if err := c.get(ctx, sourcesPath(codeHash, "/manifest", opts), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListLookups lists the server's resolution log, newest first
func (c *Client) ListLookups(ctx context.Context, q LookupsQuery) (*ListLookupsResponse, error) {
	v := url.Values{}
	setIf(v, "status", q.Status)
	setIf(v, "network", q.Network)
	setIf(v, "codeHash", q.CodeHash)
	setIf(v, "cursor", q.Cursor)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	path := "/api/v1/lookups"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var resp ListLookupsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// sourcesPath escapes the hash so base64 '/' survives routing.
func sourcesPath(codeHash, suffix string, opts ResolveOptions) string {
	path := "/api/v1/sources/" + url.PathEscape(codeHash) + suffix

	v := url.Values{}
	setIf(v, "network", opts.Network)
	setIf(v, "verifier", opts.Verifier)
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	return path
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
