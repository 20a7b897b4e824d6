package entity

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/five82/flowwatch/internal/fileflows"
	"github.com/five82/flowwatch/internal/state"
)

const (
	integration = "fileflows"
	brand       = "FileFlows"

	// DefaultConnectedTimespan is how recently a node must have been seen to
	// count as connected.
	DefaultConnectedTimespan = 5 * time.Minute
)

// Kind is the entity platform.
type Kind string

const (
	KindSensor       Kind = "sensor"
	KindBinarySensor Kind = "binary_sensor"
	KindSwitch       Kind = "switch"
	KindNumber       Kind = "number"
	KindUpdate       Kind = "update"
)

// Category marks entities that are not primary readings.
type Category string

const (
	CategoryNone       Category = ""
	CategoryDiagnostic Category = "diagnostic"
	CategoryConfig     Category = "config"
)

// Device groups entities the way they are shown to the user.
type Device struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SWVersion    string `json:"sw_version,omitempty"`
	ViaDevice    string `json:"via_device,omitempty"`
	URL          string `json:"configuration_url,omitempty"`
}

// State is one entity evaluated against a snapshot. Value is nil when the
// entity is unavailable.
type State struct {
	UniqueID    string         `json:"unique_id"`
	Name        string         `json:"name"`
	Kind        Kind           `json:"kind"`
	Value       any            `json:"value"`
	Available   bool           `json:"available"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Unit        string         `json:"unit,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	StateClass  string         `json:"state_class,omitempty"`
	Category    Category       `json:"category,omitempty"`
	Device      Device         `json:"device"`
}

// Options configure a Registry.
type Options struct {
	EntryID           string
	Title             string
	BaseURL           string
	ConnectedTimespan time.Duration
}

// Registry turns snapshots into entity states. Nodes seen once keep their
// entities, reported unavailable while missing from later snapshots.
type Registry struct {
	opts Options

	mu    sync.Mutex
	nodes map[string]fileflows.Node
}

// NewRegistry builds a registry for one config entry.
func NewRegistry(opts Options) *Registry {
	if opts.ConnectedTimespan <= 0 {
		opts.ConnectedTimespan = DefaultConnectedTimespan
	}
	if strings.TrimSpace(opts.Title) == "" {
		opts.Title = "FileFlows"
	}
	return &Registry{opts: opts, nodes: make(map[string]fileflows.Node)}
}

// Build evaluates every entity against snap at time now.
func (r *Registry) Build(snap state.Snapshot, now time.Time) []State {
	out := r.serverStates(snap)

	for _, node := range r.trackNodes(snap) {
		current, present := snap.Node(node.UID)
		if present {
			node = current
		}
		out = append(out, r.nodeStates(node, present && nodeDataAvailable(snap), now)...)
	}

	runners := slices.Clone(snap.Runners.Value)
	slices.SortStableFunc(runners, func(a, b fileflows.Runner) int {
		return a.ParsedStartedAt().Compare(b.ParsedStartedAt())
	})
	for _, runner := range runners {
		if strings.TrimSpace(runner.UID) == "" {
			continue
		}
		out = append(out, r.runnerStates(snap, runner)...)
	}
	return out
}

// trackNodes records nodes from snap and returns every known node sorted by name.
func (r *Registry) trackNodes(snap state.Snapshot) []fileflows.Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Nodes.Available {
		for _, n := range snap.Nodes.Value {
			if strings.TrimSpace(n.UID) == "" {
				continue
			}
			r.nodes[n.UID] = n
		}
	}
	nodes := make([]fileflows.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b fileflows.Node) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.UID, b.UID)
	})
	return nodes
}

func nodeDataAvailable(snap state.Snapshot) bool {
	return snap.LastUpdateSuccess && snap.Nodes.Available
}

// Find returns the state with the given unique ID.
func Find(states []State, uniqueID string) (State, bool) {
	for _, s := range states {
		if s.UniqueID == uniqueID {
			return s, true
		}
	}
	return State{}, false
}

func (r *Registry) serverPrefix() string {
	return r.opts.EntryID + "_server"
}

func (r *Registry) serverDevice(snap state.Snapshot) Device {
	d := Device{
		ID:           r.opts.EntryID,
		Name:         brand + " " + r.opts.Title + " Server",
		Manufacturer: brand,
		Model:        brand + " Server",
		URL:          r.opts.BaseURL,
	}
	if snap.SystemInfo.Available {
		d.SWVersion = snap.SystemInfo.Value.Version
	}
	return d
}

func baseAttributes() map[string]any {
	return map[string]any{"integration": integration}
}

// slug lower-cases name and replaces spaces with underscores.
func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func valueIf(available bool, v any) any {
	if !available {
		return nil
	}
	return v
}
