package fileflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// API is the full surface of the FileFlows REST API used by flowwatch.
// It is implemented by *Client and can be faked in tests.
type API interface {
	FetchStatus(ctx context.Context) (Status, error)
	FetchSystemInfo(ctx context.Context) Capability[SystemInfo]
	FetchVersion(ctx context.Context) Capability[VersionInfo]
	FetchNodes(ctx context.Context) Capability[[]Node]
	FetchRunners(ctx context.Context) Capability[[]Runner]
	FetchFlows(ctx context.Context) Capability[[]Flow]
	FetchLibraries(ctx context.Context) Capability[[]Library]
	FetchPlugins(ctx context.Context) Capability[[]Plugin]
	FetchStatistics(ctx context.Context) Capability[Statistics]
	FetchSettings(ctx context.Context) Capability[Settings]
	FetchFileHistory(ctx context.Context) Capability[[]LibraryFile]
	FetchFileStatus(ctx context.Context) Capability[[]FileStatusCount]
	Pause(ctx context.Context, minutes int) error
	Resume(ctx context.Context) error
	SetNodeState(ctx context.Context, uid string, enabled bool) error
}

// Ensure Client implements API at compile time.
var _ API = (*Client)(nil)

// Client talks to the FileFlows HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	token     string
	userAgent string
}

// Options configure a Client.
type Options struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	UserAgent      string
}

const (
	DefaultPort           = 8585
	defaultBaseURL        = "127.0.0.1:8585"
	defaultUserAgent      = "flowwatch/0.1"
	defaultTimeout        = 15 * time.Second
	defaultConnectTimeout = 10 * time.Second
	previewLimit          = 200
)

// NewClient builds a Client for the server at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
	transport.MaxConnsPerHost = 5

	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		token:     strings.TrimSpace(opts.Token),
		userAgent: userAgent,
	}, nil
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// FetchStatus retrieves queue and processing counters. It is the only
// mandatory endpoint.
func (c *Client) FetchStatus(ctx context.Context) (Status, error) {
	if c == nil {
		return Status{}, fmt.Errorf("client is nil")
	}
	raw, err := c.do(ctx, http.MethodGet, &url.URL{Path: "/api/status"}, false)
	if err != nil {
		return Status{}, err
	}
	var payload Status
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Status{}, &APIError{Kind: KindMalformed, Endpoint: "/api/status", Message: fmt.Sprintf("decode status: %v", err), Err: err}
	}
	return payload, nil
}

// FetchSystemInfo retrieves server version and resource usage.
func (c *Client) FetchSystemInfo(ctx context.Context) Capability[SystemInfo] {
	return probe(ctx, c, systemInfoPaths, decodeObject[SystemInfo])
}

// FetchVersion retrieves installed and latest server versions.
func (c *Client) FetchVersion(ctx context.Context) Capability[VersionInfo] {
	return probe(ctx, c, versionPaths, decodeObject[VersionInfo])
}

// FetchNodes retrieves the processing nodes.
func (c *Client) FetchNodes(ctx context.Context) Capability[[]Node] {
	return probe(ctx, c, nodePaths, listDecoder[Node]("nodes", "workers", "data"))
}

// FetchRunners retrieves flow executions currently in progress.
func (c *Client) FetchRunners(ctx context.Context) Capability[[]Runner] {
	return probe(ctx, c, runnerPaths, listDecoder[Runner]("workers", "runners", "data"))
}

// FetchFlows retrieves configured flows.
func (c *Client) FetchFlows(ctx context.Context) Capability[[]Flow] {
	return probe(ctx, c, flowPaths, listDecoder[Flow]("flows", "data"))
}

// FetchLibraries retrieves configured libraries.
func (c *Client) FetchLibraries(ctx context.Context) Capability[[]Library] {
	return probe(ctx, c, libraryPaths, listDecoder[Library]("libraries", "data"))
}

// FetchPlugins retrieves installed plugins.
func (c *Client) FetchPlugins(ctx context.Context) Capability[[]Plugin] {
	return probe(ctx, c, pluginPaths, listDecoder[Plugin]("plugins", "data"))
}

// FetchStatistics retrieves server statistics as an untyped document.
func (c *Client) FetchStatistics(ctx context.Context) Capability[Statistics] {
	return probe(ctx, c, statisticsPaths, decodeObject[Statistics])
}

// FetchSettings retrieves server settings as an untyped document.
func (c *Client) FetchSettings(ctx context.Context) Capability[Settings] {
	return probe(ctx, c, settingsPaths, decodeObject[Settings])
}

// FetchFileHistory retrieves recently processed files.
func (c *Client) FetchFileHistory(ctx context.Context) Capability[[]LibraryFile] {
	return probe(ctx, c, historyPaths, listDecoder[LibraryFile]("history", "files", "data"))
}

// FetchFileStatus retrieves per-status library file counts.
func (c *Client) FetchFileStatus(ctx context.Context) Capability[[]FileStatusCount] {
	return probe(ctx, c, fileStatusPaths, listDecoder[FileStatusCount]("data"))
}

// Pause pauses processing on the server. A positive minutes value pauses for
// that long; zero pauses until Resume.
func (c *Client) Pause(ctx context.Context, minutes int) error {
	rel := &url.URL{Path: "/api/pause"}
	if minutes > 0 {
		rel.RawQuery = url.Values{"duration": {strconv.Itoa(minutes)}}.Encode()
	}
	_, err := c.do(ctx, http.MethodPost, rel, true)
	return err
}

// Resume resumes processing on the server.
func (c *Client) Resume(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, &url.URL{Path: "/api/resume"}, true)
	return err
}

// SetNodeState enables or disables a processing node.
func (c *Client) SetNodeState(ctx context.Context, uid string, enabled bool) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return fmt.Errorf("node uid required")
	}
	rel := &url.URL{
		Path:     "/api/node/state/" + uid,
		RawQuery: url.Values{"enable": {strconv.FormatBool(enabled)}}.Encode(),
	}
	_, err := c.do(ctx, http.MethodPut, rel, true)
	return err
}

// do performs exactly one request and returns the validated JSON body. When
// allowEmpty is set an empty 2xx body yields (nil, nil).
func (c *Client) do(ctx context.Context, method string, rel *url.URL, allowEmpty bool) (json.RawMessage, error) {
	endpoint := rel.Path
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, Endpoint: endpoint, Message: fmt.Sprintf("create request: %v", err), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, requestError(endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestError(endpoint, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &APIError{Kind: KindNotFound, Endpoint: endpoint, StatusCode: resp.StatusCode, Message: "endpoint not found"}
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{
			Kind:       KindHTTP,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("returned status %d: %s", resp.StatusCode, preview(bytes.TrimSpace(body), previewLimit)),
		}
	}
	if allowEmpty && len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	raw, err := Parse(body)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			apiErr.Endpoint = endpoint
			apiErr.StatusCode = resp.StatusCode
		}
		return nil, err
	}
	return raw, nil
}

// Parse validates a response body the way every endpoint does: it must be
// non-empty, start with '{' or '[', and be valid JSON. The content type is
// ignored.
func Parse(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &APIError{Kind: KindEmpty, Message: "empty response"}
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, &APIError{Kind: KindNonJSON, Message: fmt.Sprintf("non-JSON response: %s", preview(trimmed, 100))}
	}
	var doc any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, &APIError{Kind: KindMalformed, Message: fmt.Sprintf("invalid JSON: %v", err), Err: err}
	}
	return json.RawMessage(trimmed), nil
}

func requestError(endpoint string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: KindTimeout, Endpoint: endpoint, Message: fmt.Sprintf("timeout: %v", err), Err: err}
	}
	return &APIError{Kind: KindTransport, Endpoint: endpoint, Message: fmt.Sprintf("connection error: %v", err), Err: err}
}

func parseBaseURL(baseURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("parse base url %q: missing host", baseURL)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
