// Package config loads the flowwatch configuration.
//
// # Overview
//
// flowwatch monitors a single FileFlows server. The configuration names the
// server, the polling cadence and failure policy, and where flowwatch keeps
// its own files (log, entry).
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/flowwatch/config.toml (default)
//  3. If the config file doesn't exist, start from defaults
//  4. Apply FLOWWATCH_* variables from the process environment, falling back
//     to a .env file in the working directory
//  5. Validate ranges
//
// # Default Values
//
//   - Server: 127.0.0.1:8585
//   - scan_interval: 30s (10-300)
//   - timeout: 15s (5-60), connect_timeout: 10s
//   - connected_last_seen_timespan: 300s (60-1800)
//   - failure_policy: soft
//   - listen: 127.0.0.1:8586
//   - log_file: ~/.local/share/flowwatch/flowwatch.log
//   - entry_path: ~/.config/flowwatch/entry.toml
//
// # Example
//
//	url = "http://192.168.1.18:8585"
//	api_token = ""
//	scan_interval = 30
//	failure_policy = "hard"
//	optional_endpoints = ["nodes", "runners", "flows"]
//
// # Server Address
//
// ResolveEndpoint prefers url when set: its hostname is required and its port
// defaults to 8585. Without a url, host is required and port is used as is.
// Both failures wrap ErrInvalidHost.
//
// Durations in the file and in the environment are whole seconds.
package config
