package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/five82/flowwatch/internal/fileflows"
	"github.com/five82/flowwatch/internal/state"
)

const defaultInterval = 30 * time.Second

// Policy decides how a failed poll is reported.
type Policy string

const (
	// PolicySoft publishes an error-marked snapshot and keeps polling quietly.
	PolicySoft Policy = "soft"
	// PolicyHard keeps the stale snapshot and returns an UpdateFailedError.
	PolicyHard Policy = "hard"
	// PolicyStrict is PolicyHard, and an unavailable optional endpoint also fails the update.
	PolicyStrict Policy = "strict"
)

// ParsePolicy maps a config value to a Policy. Empty means soft.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicySoft:
		return PolicySoft, nil
	case PolicyHard:
		return PolicyHard, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want soft, hard or strict)", value)
	}
}

// Optional capability names, in fetch order.
const (
	CapSystemInfo  = "system_info"
	CapVersion     = "version"
	CapNodes       = "nodes"
	CapRunners     = "runners"
	CapFlows       = "flows"
	CapLibraries   = "libraries"
	CapPlugins     = "plugins"
	CapStatistics  = "statistics"
	CapSettings    = "settings"
	CapFileHistory = "file_history"
	CapFileStatus  = "file_status"
)

type step struct {
	name  string
	fetch func(ctx context.Context, api fileflows.API, snap *state.Snapshot) string
}

// steps run in order after a successful status call. Each returns the
// failure message, or "" when the capability was available.
var steps = []step{
	{CapSystemInfo, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.SystemInfo, api.FetchSystemInfo(ctx))
	}},
	{CapVersion, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.Version, api.FetchVersion(ctx))
	}},
	{CapNodes, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.Nodes, api.FetchNodes(ctx))
	}},
	{CapRunners, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.Runners, api.FetchRunners(ctx))
	}},
	{CapFlows, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.Flows, api.FetchFlows(ctx))
	}},
	{CapLibraries, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.Libraries, api.FetchLibraries(ctx))
	}},
	{CapPlugins, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.Plugins, api.FetchPlugins(ctx))
	}},
	{CapStatistics, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.Statistics, api.FetchStatistics(ctx))
	}},
	{CapSettings, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.Settings, api.FetchSettings(ctx))
	}},
	{CapFileHistory, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.FileHistory, api.FetchFileHistory(ctx))
	}},
	{CapFileStatus, func(ctx context.Context, api fileflows.API, s *state.Snapshot) string {
		return fill(&s.FileStatus, api.FetchFileStatus(ctx))
	}},
}

func fill[T any](dst *fileflows.Capability[T], got fileflows.Capability[T]) string {
	*dst = got
	if got.Available {
		return ""
	}
	if got.Err == "" {
		return "unavailable"
	}
	return got.Err
}

// Capabilities returns every optional capability name in fetch order.
func Capabilities() []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.name
	}
	return names
}

// UpdateFailedError is returned by Refresh when the poll failed under the
// hard or strict policy.
type UpdateFailedError struct {
	Err error
}

func (e *UpdateFailedError) Error() string {
	return "update failed: " + e.Err.Error()
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

// Slot is the single-value publish target for snapshots. *state.Store
// satisfies it.
type Slot interface {
	Publish(state.Snapshot)
	Fail(error)
	Snapshot() state.Snapshot
}

// Options configure a Coordinator.
type Options struct {
	Interval time.Duration // zero uses 30s
	Policy   Policy        // empty uses PolicySoft
	Optional []string      // capability names to fetch; nil fetches all
	Logger   *zap.Logger
}

// Coordinator polls one FileFlows server and publishes snapshots.
type Coordinator struct {
	api      fileflows.API
	slot     Slot
	interval time.Duration
	policy   Policy
	enabled  map[string]bool
	logger   *zap.Logger

	requests chan struct{}

	mu        sync.Mutex
	listeners map[int]func(state.Snapshot)
	nextID    int
}

// New builds a coordinator. Unknown capability names in opts.Optional are an error.
func New(api fileflows.API, slot Slot, opts Options) (*Coordinator, error) {
	if api == nil {
		return nil, errors.New("coordinator: api is nil")
	}
	if slot == nil {
		return nil, errors.New("coordinator: slot is nil")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicySoft
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	enabled := make(map[string]bool, len(steps))
	if opts.Optional == nil {
		for _, s := range steps {
			enabled[s.name] = true
		}
	} else {
		known := make(map[string]bool, len(steps))
		for _, s := range steps {
			known[s.name] = true
		}
		for _, name := range opts.Optional {
			name = strings.ToLower(strings.TrimSpace(name))
			if !known[name] {
				return nil, fmt.Errorf("coordinator: unknown optional endpoint %q", name)
			}
			enabled[name] = true
		}
	}

	return &Coordinator{
		api:       api,
		slot:      slot,
		interval:  interval,
		policy:    policy,
		enabled:   enabled,
		logger:    logger.Named("coordinator"),
		requests:  make(chan struct{}, 1),
		listeners: make(map[int]func(state.Snapshot)),
	}, nil
}

// Interval returns the polling cadence.
func (c *Coordinator) Interval() time.Duration { return c.interval }

// Policy returns the configured failure policy.
func (c *Coordinator) Policy() Policy { return c.policy }

// Refresh runs one poll cycle: status first, then every enabled optional
// capability in order, merged into a single published snapshot.
func (c *Coordinator) Refresh(ctx context.Context) error {
	start := time.Now()

	status, err := c.api.FetchStatus(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return c.statusFailed(err)
	}

	snap := state.Snapshot{Status: status, HasStatus: true}
	var missing []string
	for _, s := range steps {
		if !c.enabled[s.name] {
			continue
		}
		if msg := s.fetch(ctx, c.api, &snap); msg != "" {
			missing = append(missing, s.name)
			c.logger.Debug("optional endpoint unavailable",
				zap.String("capability", s.name),
				zap.String("error", msg),
			)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.policy == PolicyStrict && len(missing) > 0 {
		failure := &UpdateFailedError{Err: fmt.Errorf("optional endpoints unavailable: %s", strings.Join(missing, ", "))}
		c.slot.Fail(failure)
		c.logger.Warn("poll failed", zap.Error(failure), zap.Duration("took", time.Since(start)))
		c.notify()
		return failure
	}

	c.slot.Publish(snap)
	c.logger.Debug("poll complete",
		zap.Int("queue", status.Queue),
		zap.Int("processing", status.Processing),
		zap.Int("processed", status.Processed),
		zap.Strings("unavailable", missing),
		zap.Duration("took", time.Since(start)),
	)
	c.notify()
	return nil
}

func (c *Coordinator) statusFailed(err error) error {
	if c.policy == PolicySoft {
		c.slot.Publish(state.Snapshot{StatusError: err.Error()})
		c.logger.Warn("status poll failed", zap.Error(err), zap.String("policy", string(c.policy)))
		c.notify()
		return nil
	}
	failure := &UpdateFailedError{Err: err}
	c.slot.Fail(failure)
	c.logger.Warn("status poll failed", zap.Error(err), zap.String("policy", string(c.policy)))
	c.notify()
	return failure
}

// Run polls every Interval and on each RequestRefresh until ctx is done.
// Every cycle runs on this goroutine, so cycles never overlap.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.requests:
		}
		// Failures were already logged and published.
		_ = c.Refresh(ctx)
	}
}

// RequestRefresh asks Run for an extra cycle. Requests made while one is
// already pending are coalesced. It never blocks.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.requests <- struct{}{}:
	default:
	}
}

// Subscribe registers fn to be called with the current snapshot after every
// publish or failure. The returned func removes the listener.
func (c *Coordinator) Subscribe(fn func(state.Snapshot)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Snapshot returns the latest published snapshot.
func (c *Coordinator) Snapshot() state.Snapshot {
	return c.slot.Snapshot()
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	fns := make([]func(state.Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	snap := c.slot.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}
