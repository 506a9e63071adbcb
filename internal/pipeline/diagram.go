// Package pipeline lays out, routes, animates and renders the CI/CD
// pipeline diagram shown in the "behind the scenes" modal.
//
// A Diagram is built once from a fixed table of steps and is immutable
// afterwards. Animation is driven by a Timeline compiled from the diagram and
// played by an Animator on an injectable clock; only visual state changes
// over time, never the diagram itself.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoStages         = errors.New("diagram has no stages")
	ErrLabel            = errors.New("invalid stage label")
	ErrUnknownStage     = errors.New("edge references unknown stage")
	ErrSelfLoop         = errors.New("edge connects a stage to itself")
	ErrDuplicateEdge    = errors.New("duplicate edge")
	ErrCycle            = errors.New("edges form a cycle")
	ErrNotPath          = errors.New("primary edges do not form a simple path")
	ErrTooManyBranches  = errors.New("more than one dashed branch")
	ErrPositionMismatch = errors.New("layout returned wrong number of positions")
)

const (
	// DefaultMarkerRadius is the radius of the circular stage marker.
	DefaultMarkerRadius = 40.0
	// DefaultCornerThreshold is the per-axis offset above which a connection
	// is drawn L-shaped instead of straight.
	DefaultCornerThreshold = 50.0
	maxLabelLines          = 2
)

// Step is one row of the stage table: what a stage shows, not where.
type Step struct {
	Label string `json:"label" yaml:"label" validate:"required"`
	Icon  string `json:"icon" yaml:"icon" validate:"required"`
}

// Edge is a directed link between two steps by index.
type Edge struct {
	From   int  `json:"from" yaml:"from"`
	To     int  `json:"to" yaml:"to"`
	Dashed bool `json:"dashed,omitempty" yaml:"dashed,omitempty"`
}

// Stage is a laid-out step.
type Stage struct {
	ID       int    `json:"id"`
	Label    string `json:"label"`
	Icon     string `json:"icon"`
	Position Point  `json:"position"`
}

// Lines splits the label into its display lines.
func (s Stage) Lines() []string {
	return strings.Split(s.Label, "\n")
}

// Connection is a routed edge.
type Connection struct {
	Source int      `json:"source"`
	Target int      `json:"target"`
	Dashed bool     `json:"dashed"`
	Path   Polyline `json:"path"`
}

// Options controls how New lays out and routes the diagram. Zero values
// fall back to the defaults.
type Options struct {
	Layout          Layout
	ViewBox         ViewBox
	MarkerRadius    float64
	CornerThreshold float64
}

func (o Options) withDefaults() Options {
	if o.Layout == nil {
		o.Layout = DefaultSquareLayout
	}
	if o.ViewBox == (ViewBox{}) {
		o.ViewBox = DefaultViewBox
	}
	if o.MarkerRadius <= 0 {
		o.MarkerRadius = DefaultMarkerRadius
	}
	if o.CornerThreshold <= 0 {
		o.CornerThreshold = DefaultCornerThreshold
	}
	return o
}

// Diagram is an immutable set of stages and routed connections.
type Diagram struct {
	stages       []Stage
	connections  []Connection
	viewBox      ViewBox
	markerRadius float64
}

// DefaultSteps is the build-and-deploy pipeline of this site, used when
// content names no steps of its own.
func DefaultSteps() []Step {
	return []Step{
		{Label: "Git Push", Icon: "git"},
		{Label: "Checkout Code", Icon: "code"},
		{Label: "Setup Node", Icon: "node"},
		{Label: "Install Deps", Icon: "yarn"},
		{Label: "Build", Icon: "vite"},
		{Label: "Upload Artifact", Icon: "upload"},
		{Label: "Deploy", Icon: "github"},
		{Label: "Live Site", Icon: "globe"},
	}
}

// Sequential links n stages in order with solid edges.
func Sequential(n int) []Edge {
	if n < 2 {
		return nil
	}
	edges := make([]Edge, n-1)
	for i := range edges {
		edges[i] = Edge{From: i, To: i + 1}
	}
	return edges
}

// New validates the step table and edges, lays the stages out and routes
// every edge.
func New(steps []Step, edges []Edge, opts Options) (*Diagram, error) {
	opts = opts.withDefaults()

	if len(steps) == 0 {
		return nil, ErrNoStages
	}
	for i, s := range steps {
		if err := validateStep(s); err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
	}
	if err := validateEdges(len(steps), edges); err != nil {
		return nil, err
	}

	positions, err := opts.Layout.Positions(len(steps))
	if err != nil {
		return nil, err
	}
	if len(positions) != len(steps) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrPositionMismatch, len(positions), len(steps))
	}

	stages := make([]Stage, len(steps))
	for i, s := range steps {
		stages[i] = Stage{ID: i, Label: s.Label, Icon: s.Icon, Position: positions[i]}
	}

	connections := make([]Connection, len(edges))
	for i, e := range edges {
		connections[i] = Connection{
			Source: e.From,
			Target: e.To,
			Dashed: e.Dashed,
			Path:   Route(positions[e.From], positions[e.To], opts.MarkerRadius, opts.CornerThreshold),
		}
	}

	return &Diagram{
		stages:       stages,
		connections:  connections,
		viewBox:      opts.ViewBox,
		markerRadius: opts.MarkerRadius,
	}, nil
}

// Stages returns a copy of the laid-out stages.
func (d *Diagram) Stages() []Stage {
	out := make([]Stage, len(d.stages))
	copy(out, d.stages)
	return out
}

// Connections returns a copy of the routed connections.
func (d *Diagram) Connections() []Connection {
	out := make([]Connection, len(d.connections))
	for i, c := range d.connections {
		c.Path = append(Polyline(nil), c.Path...)
		out[i] = c
	}
	return out
}

// path returns the j-th connection's path without copying it.
func (d *Diagram) path(j int) Polyline {
	return d.connections[j].Path
}

// ViewBox returns the logical canvas size.
func (d *Diagram) ViewBox() ViewBox { return d.viewBox }

// MarkerRadius returns the radius of stage markers.
func (d *Diagram) MarkerRadius() float64 { return d.markerRadius }

func validateStep(s Step) error {
	if strings.TrimSpace(s.Label) == "" {
		return fmt.Errorf("%w: empty", ErrLabel)
	}
	if n := len(strings.Split(s.Label, "\n")); n > maxLabelLines {
		return fmt.Errorf("%w: %d lines, at most %d", ErrLabel, n, maxLabelLines)
	}
	if strings.TrimSpace(s.Icon) == "" {
		return fmt.Errorf("%w: empty icon", ErrLabel)
	}
	return nil
}

// validateEdges enforces the path-plus-one-branch shape: primary edges
// chain stages at most one in and one out, at most one dashed edge, and no
// cycle over all edges.
func validateEdges(n int, edges []Edge) error {
	type pair struct{ from, to int }
	seen := make(map[pair]bool, len(edges))
	primaryIn := make([]int, n)
	primaryOut := make([]int, n)
	adj := make([][]int, n)
	dashed := 0

	for i, e := range edges {
		if e.From < 0 || e.From >= n || e.To < 0 || e.To >= n {
			return fmt.Errorf("edge %d (%d->%d): %w", i, e.From, e.To, ErrUnknownStage)
		}
		if e.From == e.To {
			return fmt.Errorf("edge %d (%d->%d): %w", i, e.From, e.To, ErrSelfLoop)
		}
		k := pair{e.From, e.To}
		if seen[k] {
			return fmt.Errorf("edge %d (%d->%d): %w", i, e.From, e.To, ErrDuplicateEdge)
		}
		seen[k] = true
		adj[e.From] = append(adj[e.From], e.To)

		if e.Dashed {
			dashed++
			continue
		}
		primaryOut[e.From]++
		primaryIn[e.To]++
		if primaryOut[e.From] > 1 || primaryIn[e.To] > 1 {
			return fmt.Errorf("edge %d (%d->%d): %w", i, e.From, e.To, ErrNotPath)
		}
	}
	if dashed > 1 {
		return fmt.Errorf("%d dashed edges: %w", dashed, ErrTooManyBranches)
	}
	if hasCycle(adj) {
		return ErrCycle
	}

	// With in and out degree at most one and no cycle, every chain has
	// exactly one head.
	heads := 0
	for v := 0; v < n; v++ {
		if primaryOut[v] > 0 && primaryIn[v] == 0 {
			heads++
		}
	}
	if heads > 1 {
		return fmt.Errorf("%d separate chains: %w", heads, ErrNotPath)
	}
	return nil
}

func hasCycle(adj [][]int) bool {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(adj))
	var visit func(int) bool
	visit = func(v int) bool {
		state[v] = onStack
		for _, w := range adj[v] {
			switch state[w] {
			case onStack:
				return true
			case unvisited:
				if visit(w) {
					return true
				}
			}
		}
		state[v] = done
		return false
	}
	for v := range adj {
		if state[v] == unvisited && visit(v) {
			return true
		}
	}
	return false
}
