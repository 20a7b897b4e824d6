package state

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/five82/flowwatch/internal/fileflows"
)

// Snapshot is the merged result of one poll cycle.
type Snapshot struct {
	Status      fileflows.Status
	HasStatus   bool
	StatusError string // set when the status call failed under the soft policy

	SystemInfo  fileflows.Capability[fileflows.SystemInfo]
	Version     fileflows.Capability[fileflows.VersionInfo]
	Nodes       fileflows.Capability[[]fileflows.Node]
	Runners     fileflows.Capability[[]fileflows.Runner]
	Flows       fileflows.Capability[[]fileflows.Flow]
	Libraries   fileflows.Capability[[]fileflows.Library]
	Plugins     fileflows.Capability[[]fileflows.Plugin]
	Statistics  fileflows.Capability[fileflows.Statistics]
	Settings    fileflows.Capability[fileflows.Settings]
	FileHistory fileflows.Capability[[]fileflows.LibraryFile]
	FileStatus  fileflows.Capability[[]fileflows.FileStatusCount]

	LastUpdated         time.Time
	LastUpdateSuccess   bool
	LastError           error
	ConsecutiveFailures int // Number of consecutive poll failures
}

// Online reports whether the last poll succeeded and carried a usable status.
func (s Snapshot) Online() bool {
	return s.LastUpdateSuccess && s.HasStatus && s.StatusError == ""
}

// IsOffline returns true when the API has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Node returns the node with uid from the last node list.
func (s Snapshot) Node(uid string) (fileflows.Node, bool) {
	for _, n := range s.Nodes.Value {
		if n.UID == uid {
			return n, true
		}
	}
	return fileflows.Node{}, false
}

// Runner returns the runner with uid from the last runner list.
func (s Snapshot) Runner(uid string) (fileflows.Runner, bool) {
	for _, r := range s.Runners.Value {
		if r.UID == uid {
			return r, true
		}
	}
	return fileflows.Runner{}, false
}

// Store holds the single authoritative snapshot for one server.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Publish replaces the stored snapshot wholesale. A snapshot carrying a status
// error marker still counts as a failed poll for the offline counter.
func (s *Store) Publish(snap Snapshot) {
	next := clone(snap)
	next.LastUpdated = time.Now()
	next.LastUpdateSuccess = true
	next.LastError = nil

	s.mu.Lock()
	defer s.mu.Unlock()

	if next.StatusError != "" {
		next.ConsecutiveFailures = s.snapshot.ConsecutiveFailures + 1
	} else {
		next.ConsecutiveFailures = 0
	}
	s.snapshot = next
}

// Fail records a failed poll. The previous data is kept but marked stale.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastError = err
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.LastUpdateSuccess = false
	s.snapshot.ConsecutiveFailures++
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := clone(s.snapshot)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func clone(in Snapshot) Snapshot {
	out := in
	out.Status.ProcessingFiles = slices.Clone(in.Status.ProcessingFiles)
	out.Nodes.Value = cloneNodes(in.Nodes.Value)
	out.Runners.Value = slices.Clone(in.Runners.Value)
	out.Flows.Value = slices.Clone(in.Flows.Value)
	out.Libraries.Value = slices.Clone(in.Libraries.Value)
	out.Plugins.Value = slices.Clone(in.Plugins.Value)
	out.FileStatus.Value = slices.Clone(in.FileStatus.Value)
	out.FileHistory.Value = slices.Clone(in.FileHistory.Value)
	out.Statistics.Value = cloneDocument(in.Statistics.Value)
	out.Settings.Value = cloneDocument(in.Settings.Value)
	return out
}

// cloneDocument copies a decoded JSON object, including nested objects and
// arrays.
func cloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	dup := make(map[string]any, len(doc))
	for k, v := range doc {
		dup[k] = cloneJSONValue(v)
	}
	return dup
}

func cloneJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDocument(t)
	case []any:
		dup := make([]any, len(t))
		for i, item := range t {
			dup[i] = cloneJSONValue(item)
		}
		return dup
	default:
		return v
	}
}

func cloneNodes(nodes []fileflows.Node) []fileflows.Node {
	if nodes == nil {
		return nil
	}
	dup := make([]fileflows.Node, len(nodes))
	for i, n := range nodes {
		dup[i] = n
		if n.Enabled != nil {
			enabled := *n.Enabled
			dup[i].Enabled = &enabled
		}
	}
	return dup
}
