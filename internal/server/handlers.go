package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/five82/flowwatch/internal/entity"
	"github.com/five82/flowwatch/internal/fileflows"
	"github.com/five82/flowwatch/internal/state"
)

// snapshotView is the JSON shape of a snapshot.
type snapshotView struct {
	Online              bool                                              `json:"online"`
	Status              *fileflows.Status                                 `json:"status,omitempty"`
	StatusError         string                                            `json:"status_error,omitempty"`
	SystemInfo          fileflows.Capability[fileflows.SystemInfo]        `json:"system_info"`
	Version             fileflows.Capability[fileflows.VersionInfo]       `json:"version"`
	Nodes               fileflows.Capability[[]fileflows.Node]            `json:"nodes"`
	Runners             fileflows.Capability[[]fileflows.Runner]          `json:"runners"`
	Flows               fileflows.Capability[[]fileflows.Flow]            `json:"flows"`
	Libraries           fileflows.Capability[[]fileflows.Library]         `json:"libraries"`
	Plugins             fileflows.Capability[[]fileflows.Plugin]          `json:"plugins"`
	Statistics          fileflows.Capability[fileflows.Statistics]        `json:"statistics"`
	Settings            fileflows.Capability[fileflows.Settings]          `json:"settings"`
	FileHistory         fileflows.Capability[[]fileflows.LibraryFile]     `json:"file_history"`
	FileStatus          fileflows.Capability[[]fileflows.FileStatusCount] `json:"file_status"`
	LastUpdated         *time.Time                                        `json:"last_updated,omitempty"`
	LastUpdateSuccess   bool                                              `json:"last_update_success"`
	LastError           string                                            `json:"last_error,omitempty"`
	ConsecutiveFailures int                                               `json:"consecutive_failures"`
}

func newSnapshotView(snap state.Snapshot) snapshotView {
	v := snapshotView{
		Online:              snap.Online(),
		StatusError:         snap.StatusError,
		SystemInfo:          snap.SystemInfo,
		Version:             snap.Version,
		Nodes:               snap.Nodes,
		Runners:             snap.Runners,
		Flows:               snap.Flows,
		Libraries:           snap.Libraries,
		Plugins:             snap.Plugins,
		Statistics:          snap.Statistics,
		Settings:            snap.Settings,
		FileHistory:         snap.FileHistory,
		FileStatus:          snap.FileStatus,
		LastUpdateSuccess:   snap.LastUpdateSuccess,
		ConsecutiveFailures: snap.ConsecutiveFailures,
	}
	if snap.HasStatus {
		status := snap.Status
		v.Status = &status
	}
	if !snap.LastUpdated.IsZero() {
		t := snap.LastUpdated
		v.LastUpdated = &t
	}
	if snap.LastError != nil {
		v.LastError = snap.LastError.Error()
	}
	return v
}

func (s *Server) health(c *gin.Context) {
	snap := s.source.Snapshot()
	status := "ok"
	if !snap.Online() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":               status,
		"online":               snap.Online(),
		"consecutive_failures": snap.ConsecutiveFailures,
	})
}

func (s *Server) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, newSnapshotView(s.source.Snapshot()))
}

func (s *Server) entities(c *gin.Context) {
	states := s.states()
	if kind := c.Query("kind"); kind != "" {
		filtered := states[:0]
		for _, st := range states {
			if string(st.Kind) == kind {
				filtered = append(filtered, st)
			}
		}
		states = filtered
	}
	c.JSON(http.StatusOK, states)
}

func (s *Server) entityByID(c *gin.Context) {
	st, ok := entity.Find(s.states(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) refresh(c *gin.Context) {
	s.actions.ForceRefresh()
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh requested"})
}

type pauseRequest struct {
	Minutes int `json:"minutes"`
}

func (s *Server) pause(c *gin.Context) {
	var req pauseRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if req.Minutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minutes must not be negative"})
		return
	}
	if err := s.actions.Pause(c.Request.Context(), req.Minutes); err != nil {
		s.commandFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused", "minutes": req.Minutes})
}

func (s *Server) resume(c *gin.Context) {
	if err := s.actions.Resume(c.Request.Context()); err != nil {
		s.commandFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

type nodeEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) setNodeEnabled(c *gin.Context) {
	var req nodeEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `body must be {"enabled": true|false}`})
		return
	}
	uid := c.Param("uid")
	if err := s.actions.SetNodeEnabled(c.Request.Context(), uid, *req.Enabled); err != nil {
		s.commandFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uid": uid, "enabled": *req.Enabled})
}

// commandFailed reports API failures as 502 and anything else as 400.
func (s *Server) commandFailed(c *gin.Context, err error) {
	var apiErr *fileflows.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "kind": apiErr.Kind.String()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

const streamWriteTimeout = 10 * time.Second

// stream pushes the full entity list on connect and after every poll.
func (s *Server) stream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates := make(chan state.Snapshot, 1)
	unsubscribe := s.source.Subscribe(func(snap state.Snapshot) {
		// Keep only the newest snapshot for slow readers.
		select {
		case updates <- snap:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- snap:
			default:
			}
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(snap state.Snapshot) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteJSON(s.registry.Build(snap, s.now()))
	}

	if err := send(s.source.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case snap := <-updates:
			if err := send(snap); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("stream write failed", zap.Error(err))
				}
				return
			}
		}
	}
}
