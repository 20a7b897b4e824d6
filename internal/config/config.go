package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// ErrInvalidHost is returned when neither a usable URL nor a host is configured.
var ErrInvalidHost = errors.New("invalid host")

// Config is the flowwatch configuration for one FileFlows server.
type Config struct {
	Name     string
	URL      string
	Host     string
	Port     int
	APIToken string

	ScanInterval              time.Duration
	Timeout                   time.Duration
	ConnectTimeout            time.Duration
	ConnectedLastSeenTimespan time.Duration

	FailurePolicy     string
	OptionalEndpoints []string // nil fetches every optional endpoint

	Listen    string
	LogLevel  string
	LogFormat string
	LogFile   string
	EntryPath string
}

const (
	defaultConfigPath = "~/.config/flowwatch/config.toml"
	defaultEntryPath  = "~/.config/flowwatch/entry.toml"
	defaultLogFile    = "~/.local/share/flowwatch/flowwatch.log"
	defaultListen     = "127.0.0.1:8586"
	defaultDotenv     = ".env"

	DefaultPort                      = 8585
	defaultScanInterval              = 30
	defaultTimeout                   = 15
	defaultConnectTimeout            = 10
	defaultConnectedLastSeenTimespan = 300

	envPrefix = "FLOWWATCH_"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Host:                      "127.0.0.1",
		Port:                      DefaultPort,
		ScanInterval:              defaultScanInterval * time.Second,
		Timeout:                   defaultTimeout * time.Second,
		ConnectTimeout:            defaultConnectTimeout * time.Second,
		ConnectedLastSeenTimespan: defaultConnectedLastSeenTimespan * time.Second,
		FailurePolicy:             "soft",
		Listen:                    defaultListen,
		LogLevel:                  "info",
		LogFormat:                 "json",
		LogFile:                   mustExpand(defaultLogFile),
		EntryPath:                 mustExpand(defaultEntryPath),
	}
}

// fileConfig mirrors the TOML layout. Durations are whole seconds.
type fileConfig struct {
	Name                      string   `toml:"name"`
	URL                       string   `toml:"url"`
	Host                      string   `toml:"host"`
	Port                      int      `toml:"port"`
	APIToken                  string   `toml:"api_token"`
	ScanInterval              int      `toml:"scan_interval"`
	Timeout                   int      `toml:"timeout"`
	ConnectTimeout            int      `toml:"connect_timeout"`
	ConnectedLastSeenTimespan int      `toml:"connected_last_seen_timespan"`
	FailurePolicy             string   `toml:"failure_policy"`
	OptionalEndpoints         []string `toml:"optional_endpoints"`
	Listen                    string   `toml:"listen"`
	LogLevel                  string   `toml:"log_level"`
	LogFormat                 string   `toml:"log_format"`
	LogFile                   string   `toml:"log_file"`
	EntryPath                 string   `toml:"entry_path"`
}

// Load reads the TOML config at path (default ~/.config/flowwatch/config.toml),
// then applies FLOWWATCH_* overrides from the environment and a .env file in
// the working directory. A missing config file falls back to defaults.
func Load(path string) (Config, error) {
	dotenv, err := readDotenv(defaultDotenv)
	if err != nil {
		return Config{}, err
	}
	return load(path, func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var raw fileConfig
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		cfg.merge(raw)
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.LogFile = mustExpand(cfg.LogFile)
	cfg.EntryPath = mustExpand(cfg.EntryPath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(raw fileConfig) {
	setString(&c.Name, raw.Name)
	setString(&c.URL, raw.URL)
	setString(&c.Host, raw.Host)
	if raw.Port != 0 {
		c.Port = raw.Port
	}
	c.APIToken = strings.TrimSpace(raw.APIToken)
	setSeconds(&c.ScanInterval, raw.ScanInterval)
	setSeconds(&c.Timeout, raw.Timeout)
	setSeconds(&c.ConnectTimeout, raw.ConnectTimeout)
	setSeconds(&c.ConnectedLastSeenTimespan, raw.ConnectedLastSeenTimespan)
	setString(&c.FailurePolicy, raw.FailurePolicy)
	if raw.OptionalEndpoints != nil {
		c.OptionalEndpoints = cleanList(raw.OptionalEndpoints)
	}
	setString(&c.Listen, raw.Listen)
	setString(&c.LogLevel, raw.LogLevel)
	setString(&c.LogFormat, raw.LogFormat)
	setString(&c.LogFile, raw.LogFile)
	setString(&c.EntryPath, raw.EntryPath)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	strs := map[string]*string{
		"NAME":           &c.Name,
		"URL":            &c.URL,
		"HOST":           &c.Host,
		"API_TOKEN":      &c.APIToken,
		"FAILURE_POLICY": &c.FailurePolicy,
		"LISTEN":         &c.Listen,
		"LOG_LEVEL":      &c.LogLevel,
		"LOG_FORMAT":     &c.LogFormat,
		"LOG_FILE":       &c.LogFile,
		"ENTRY_PATH":     &c.EntryPath,
	}
	for name, dst := range strs {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	if v, ok := get("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sPORT: %w", envPrefix, err)
		}
		c.Port = port
	}
	secs := map[string]*time.Duration{
		"SCAN_INTERVAL":                &c.ScanInterval,
		"TIMEOUT":                      &c.Timeout,
		"CONNECT_TIMEOUT":              &c.ConnectTimeout,
		"CONNECTED_LAST_SEEN_TIMESPAN": &c.ConnectedLastSeenTimespan,
	}
	for name, dst := range secs {
		v, ok := get(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
		}
		*dst = time.Duration(n) * time.Second
	}
	if v, ok := get("OPTIONAL_ENDPOINTS"); ok {
		c.OptionalEndpoints = cleanList(strings.Split(v, ","))
	}
	return nil
}

// Validate checks ranges and the failure policy.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	if err := inRange("scan_interval", c.ScanInterval, 10*time.Second, 300*time.Second); err != nil {
		return err
	}
	if err := inRange("timeout", c.Timeout, 5*time.Second, 60*time.Second); err != nil {
		return err
	}
	if err := inRange("connect_timeout", c.ConnectTimeout, time.Second, 60*time.Second); err != nil {
		return err
	}
	if err := inRange("connected_last_seen_timespan", c.ConnectedLastSeenTimespan, time.Minute, 30*time.Minute); err != nil {
		return err
	}
	switch strings.ToLower(c.FailurePolicy) {
	case "", "soft", "hard", "strict":
	default:
		return fmt.Errorf("failure_policy %q must be soft, hard or strict", c.FailurePolicy)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		return fmt.Errorf("log_format %q must be json or console", c.LogFormat)
	}
	return nil
}

// Endpoint is a resolved FileFlows server address.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
}

// BaseURL returns scheme://host:port.
func (e Endpoint) BaseURL() string {
	return e.Scheme + "://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// UniqueID identifies the server as host_port.
func (e Endpoint) UniqueID() string {
	return fmt.Sprintf("%s_%d", e.Host, e.Port)
}

// Endpoint resolves the configured server address.
func (c Config) Endpoint() (Endpoint, error) {
	return ResolveEndpoint(c.URL, c.Host, c.Port)
}

// Title returns the configured name, or "FileFlows (<host>)".
func (c Config) Title(ep Endpoint) string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return fmt.Sprintf("FileFlows (%s)", ep.Host)
}

// ResolveEndpoint picks the server address. A non-empty URL wins and supplies
// the host and, when present, the port; otherwise host and port are used.
func ResolveEndpoint(rawURL, host string, port int) (Endpoint, error) {
	if port <= 0 {
		port = DefaultPort
	}
	if trimmed := strings.TrimSpace(rawURL); trimmed != "" {
		if !strings.Contains(trimmed, "://") {
			trimmed = "http://" + trimmed
		}
		u, err := url.Parse(trimmed)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: parse url: %v", ErrInvalidHost, err)
		}
		if u.Hostname() == "" {
			return Endpoint{}, fmt.Errorf("%w: could not extract hostname from %q", ErrInvalidHost, rawURL)
		}
		ep := Endpoint{Scheme: u.Scheme, Host: u.Hostname(), Port: DefaultPort}
		if p := u.Port(); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				return Endpoint{}, fmt.Errorf("%w: bad port %q", ErrInvalidHost, p)
			}
			ep.Port = n
		}
		return ep, nil
	}

	host = strings.TrimSpace(host)
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: host is required when url is not set", ErrInvalidHost)
	}
	return Endpoint{Scheme: "http", Host: host, Port: port}, nil
}

func readDotenv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return env, nil
}

func inRange(name string, d, lo, hi time.Duration) error {
	if d < lo || d > hi {
		return fmt.Errorf("%s %s out of range %s-%s", name, d, lo, hi)
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setSeconds(dst *time.Duration, secs int) {
	if secs > 0 {
		*dst = time.Duration(secs) * time.Second
	}
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
