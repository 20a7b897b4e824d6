package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/five82/flowwatch/internal/config"
	"github.com/five82/flowwatch/internal/coordinator"
	"github.com/five82/flowwatch/internal/entity"
	"github.com/five82/flowwatch/internal/entry"
	"github.com/five82/flowwatch/internal/fileflows"
	"github.com/five82/flowwatch/internal/logging"
	"github.com/five82/flowwatch/internal/server"
	"github.com/five82/flowwatch/internal/state"
	"github.com/five82/flowwatch/internal/ui"
)

// ErrCannotConnect rejects setup when the test request against the status
// endpoint fails.
var ErrCannotConnect = errors.New("cannot connect to FileFlows")

// Options configure the flowwatch commands.
type Options struct {
	ConfigPath string
	PollEvery  int // seconds; zero uses the configured scan interval
}

// Instance is one running config entry: the client, the coordinator and the
// entity layer built on top of them.
type Instance struct {
	Config      config.Config
	Endpoint    config.Endpoint
	Entry       entry.Entry
	Client      *fileflows.Client
	Store       *state.Store
	Coordinator *coordinator.Coordinator
	Registry    *entity.Registry
	Controller  *entity.Controller
	Logger      *zap.Logger
}

// Setup validates connectivity, loads or creates the entry and performs the
// first refresh. Under the hard and strict policies a failed first refresh
// fails setup.
func Setup(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Instance, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ep, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	policy, err := coordinator.ParsePolicy(cfg.FailurePolicy)
	if err != nil {
		return nil, err
	}

	client, err := fileflows.NewClient(fileflows.Options{
		BaseURL:        ep.BaseURL(),
		Token:          cfg.APIToken,
		Timeout:        cfg.Timeout,
		ConnectTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init fileflows client: %w", err)
	}

	if _, err := client.FetchStatus(ctx); err != nil {
		logger.Warn("setup connectivity check failed", zap.String("server", ep.BaseURL()), zap.Error(err))
		return nil, fmt.Errorf("%w at %s: %w", ErrCannotConnect, ep.BaseURL(), err)
	}

	title := cfg.Title(ep)
	ent, err := entry.LoadOrCreate(cfg.EntryPath, title, ep.UniqueID())
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	if ent.Server != ep.UniqueID() {
		logger.Warn("entry was created for another server",
			zap.String("entry_server", ent.Server), zap.String("server", ep.UniqueID()))
	}

	store := &state.Store{}
	coord, err := coordinator.New(client, store, coordinator.Options{
		Interval: cfg.ScanInterval,
		Policy:   policy,
		Optional: cfg.OptionalEndpoints,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		Config:      cfg,
		Endpoint:    ep,
		Entry:       ent,
		Client:      client,
		Store:       store,
		Coordinator: coord,
		Registry: entity.NewRegistry(entity.Options{
			EntryID:           ent.ID,
			Title:             ent.Title,
			BaseURL:           ep.BaseURL(),
			ConnectedTimespan: cfg.ConnectedLastSeenTimespan,
		}),
		Controller: entity.NewController(client, coord, logger),
		Logger:     logger,
	}

	if err := coord.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("first refresh: %w", err)
	}

	logger.Info("entry set up",
		zap.String("entry", ent.ID),
		zap.String("title", ent.Title),
		zap.String("server", ep.BaseURL()),
		zap.String("policy", string(policy)),
		zap.Duration("interval", coord.Interval()),
	)
	return inst, nil
}

// Start runs the coordinator loop until ctx is cancelled.
func (i *Instance) Start(ctx context.Context) {
	go i.Coordinator.Run(ctx)
}

// RunDashboard boots the terminal dashboard. Logs go to the log file only.
func RunDashboard(ctx context.Context, opts Options) error {
	cfg, logger, err := bootstrap(opts, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	inst, err := Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	inst.Start(ctx)

	return ui.Run(ctx, ui.Options{
		Context:   ctx,
		Source:    inst.Coordinator,
		Registry:  inst.Registry,
		Actions:   inst.Controller,
		Logger:    logger,
		LogPath:   cfg.LogFile,
		PollTick:  time.Second,
		Entry:     inst.Entry,
		EntryPath: cfg.EntryPath,
	})
}

// RunServer serves the HTTP API until ctx is cancelled.
func RunServer(ctx context.Context, opts Options) error {
	cfg, logger, err := bootstrap(opts, true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	inst, err := Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	inst.Start(ctx)

	srv := server.New(server.Options{
		Source:   inst.Coordinator,
		Registry: inst.Registry,
		Actions:  inst.Controller,
		Logger:   logger,
	})
	return srv.Run(ctx, cfg.Listen)
}

func bootstrap(opts Options, stderr bool) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.PollEvery > 0 {
		cfg.ScanInterval = time.Duration(opts.PollEvery) * time.Second
		if err := cfg.Validate(); err != nil {
			return config.Config{}, nil, err
		}
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Stderr: stderr,
	})
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, logger, nil
}
