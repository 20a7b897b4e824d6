package fileflows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Candidate paths for optional endpoints, in the order they are tried.
var (
	systemInfoPaths = []string{"/api/system/info", "/api/system"}
	versionPaths    = []string{"/api/system/version"}
	nodePaths       = []string{"/api/nodes", "/api/node"}
	runnerPaths     = []string{"/api/worker", "/api/workers"}
	flowPaths       = []string{"/api/flows"}
	libraryPaths    = []string{"/api/libraries", "/api/library"}
	pluginPaths     = []string{"/api/plugins", "/api/plugin"}
	statisticsPaths = []string{"/api/statistics", "/api/dashboard/statistics"}
	settingsPaths   = []string{"/api/settings"}
	historyPaths    = []string{"/api/history", "/api/files"}
	fileStatusPaths = []string{"/api/library-file/status"}
)

// KnownEndpoints lists every GET path the diagnostic probe checks.
var KnownEndpoints = []string{
	"/api/status",
	"/api/system",
	"/api/system/info",
	"/api/system/version",
	"/api/flows",
	"/api/libraries",
	"/api/nodes",
	"/api/node",
	"/api/worker",
	"/api/statistics",
	"/api/settings",
	"/api/plugins",
	"/api/files",
	"/api/history",
	"/api/logs",
	"/api/library-file/status",
}

// Capability is the outcome of an optional endpoint. When every candidate
// path failed, Available is false and Err holds the last failure message.
type Capability[T any] struct {
	Value     T      `json:"value"`
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Err       string `json:"error,omitempty"`
}

// Unavailable builds a capability that failed with err.
func Unavailable[T any](err error) Capability[T] {
	msg := "unavailable"
	if err != nil {
		msg = err.Error()
	}
	return Capability[T]{Err: msg}
}

func probe[T any](ctx context.Context, c *Client, paths []string, decode func(json.RawMessage) (T, error)) Capability[T] {
	if c == nil {
		return Unavailable[T](fmt.Errorf("client is nil"))
	}
	var last error
	for _, path := range paths {
		if ctx.Err() != nil {
			last = requestError(path, ctx.Err())
			break
		}
		raw, err := c.do(ctx, http.MethodGet, &url.URL{Path: path}, false)
		if err != nil {
			last = err
			continue
		}
		value, err := decode(raw)
		if err != nil {
			last = &APIError{Kind: KindMalformed, Endpoint: path, Message: fmt.Sprintf("decode: %v", err), Err: err}
			continue
		}
		return Capability[T]{Value: value, Available: true, Path: path}
	}
	return Unavailable[T](last)
}

func decodeObject[T any](raw json.RawMessage) (T, error) {
	var out T
	err := json.Unmarshal(raw, &out)
	return out, err
}

// listDecoder accepts either a bare array or an object carrying the array
// under one of keys (matched case-insensitively).
func listDecoder[T any](keys ...string) func(json.RawMessage) ([]T, error) {
	return func(raw json.RawMessage) ([]T, error) {
		var out []T
		if len(raw) > 0 && raw[0] == '[' {
			err := json.Unmarshal(raw, &out)
			return out, err
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		for _, key := range keys {
			for field, value := range obj {
				if !strings.EqualFold(field, key) {
					continue
				}
				if err := json.Unmarshal(value, &out); err != nil {
					return nil, err
				}
				return out, nil
			}
		}
		return nil, fmt.Errorf("no list under %s", strings.Join(keys, "/"))
	}
}

// ProbeResult reports the availability of one endpoint.
type ProbeResult struct {
	Path     string        `json:"path" yaml:"path"`
	OK       bool          `json:"ok" yaml:"ok"`
	Kind     string        `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Probe issues one GET per path and reports which ones answer with JSON.
func (c *Client) Probe(ctx context.Context, paths []string) []ProbeResult {
	if len(paths) == 0 {
		paths = KnownEndpoints
	}
	results := make([]ProbeResult, 0, len(paths))
	for _, path := range paths {
		started := time.Now()
		_, err := c.do(ctx, http.MethodGet, &url.URL{Path: path}, false)
		result := ProbeResult{Path: path, OK: err == nil, Duration: time.Since(started)}
		if err != nil {
			result.Kind = KindOf(err).String()
			result.Message = err.Error()
		}
		results = append(results, result)
	}
	return results
}
