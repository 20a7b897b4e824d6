package entity

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/five82/flowwatch/internal/fileflows"
)

// Commander is the write side of the FileFlows API.
type Commander interface {
	Pause(ctx context.Context, minutes int) error
	Resume(ctx context.Context) error
	SetNodeState(ctx context.Context, uid string, enabled bool) error
}

// Refresher schedules an out-of-band poll.
type Refresher interface {
	RequestRefresh()
}

var _ Commander = (fileflows.API)(nil)

// Controller performs writes and asks for a refresh so the result shows up
// on the next snapshot.
type Controller struct {
	api       Commander
	refresher Refresher
	logger    *zap.Logger
}

// NewController wires writes to api and refreshes to refresher.
func NewController(api Commander, refresher Refresher, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{api: api, refresher: refresher, logger: logger.Named("controller")}
}

// SetNodeEnabled turns a node on or off.
func (c *Controller) SetNodeEnabled(ctx context.Context, uid string, enabled bool) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return fmt.Errorf("set node enabled: node uid is required")
	}
	if err := c.api.SetNodeState(ctx, uid, enabled); err != nil {
		c.logger.Warn("set node state failed", zap.String("node", uid), zap.Bool("enabled", enabled), zap.Error(err))
		return fmt.Errorf("set node %s enabled=%t: %w", uid, enabled, err)
	}
	c.logger.Info("node state changed", zap.String("node", uid), zap.Bool("enabled", enabled))
	c.ForceRefresh()
	return nil
}

// Pause pauses processing; minutes <= 0 pauses indefinitely.
func (c *Controller) Pause(ctx context.Context, minutes int) error {
	if err := c.api.Pause(ctx, minutes); err != nil {
		c.logger.Warn("pause failed", zap.Error(err))
		return fmt.Errorf("pause: %w", err)
	}
	c.logger.Info("processing paused", zap.Int("minutes", minutes))
	c.ForceRefresh()
	return nil
}

// Resume resumes processing.
func (c *Controller) Resume(ctx context.Context) error {
	if err := c.api.Resume(ctx); err != nil {
		c.logger.Warn("resume failed", zap.Error(err))
		return fmt.Errorf("resume: %w", err)
	}
	c.logger.Info("processing resumed")
	c.ForceRefresh()
	return nil
}

// ForceRefresh requests a poll without waiting for it.
func (c *Controller) ForceRefresh() {
	if c.refresher != nil {
		c.refresher.RequestRefresh()
	}
}
