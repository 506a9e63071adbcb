package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Timing holds the fixed durations of the animation loop.
type Timing struct {
	// StepDelay separates consecutive stage and connection reveals.
	StepDelay time.Duration `json:"step_delay"`
	// TravelDuration is how long an indicator takes to cross one connection.
	TravelDuration time.Duration `json:"travel_duration"`
	// Pause is the idle gap after the last operation of a cycle.
	Pause time.Duration `json:"pause"`
	// PulsePeriod is one full high/low oscillation of revealed connections.
	// Zero disables pulsing.
	PulsePeriod time.Duration `json:"pulse_period"`
	// FrameInterval is the sampling period of indicator motion.
	FrameInterval time.Duration `json:"frame_interval"`
}

// DefaultTiming reproduces one dot per second per edge with a half second
// rest between loops.
func DefaultTiming() Timing {
	return Timing{
		StepDelay:      time.Second,
		TravelDuration: time.Second,
		Pause:          500 * time.Millisecond,
		PulsePeriod:    2 * time.Second,
		FrameInterval:  50 * time.Millisecond,
	}
}

var ErrTiming = errors.New("invalid timing")

// Validate rejects durations the timeline cannot be built from.
func (t Timing) Validate() error {
	switch {
	case t.StepDelay <= 0:
		return fmt.Errorf("%w: step delay must be positive", ErrTiming)
	case t.TravelDuration <= 0:
		return fmt.Errorf("%w: travel duration must be positive", ErrTiming)
	case t.FrameInterval <= 0:
		return fmt.Errorf("%w: frame interval must be positive", ErrTiming)
	case t.Pause < 0:
		return fmt.Errorf("%w: pause must not be negative", ErrTiming)
	case t.PulsePeriod < 0:
		return fmt.Errorf("%w: pulse period must not be negative", ErrTiming)
	}
	return nil
}

// OpKind identifies a visual mutation.
type OpKind int

const (
	OpReset OpKind = iota
	OpShowStage
	OpShowConnection
	OpMoveIndicator
	OpRemoveIndicator
)

var opKindNames = map[OpKind]string{
	OpReset:           "reset",
	OpShowStage:       "show-stage",
	OpShowConnection:  "show-connection",
	OpMoveIndicator:   "move-indicator",
	OpRemoveIndicator: "remove-indicator",
}

func (k OpKind) String() string {
	if s, ok := opKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k OpKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Op is one scheduled mutation, At being the offset from cycle start.
// Index is a stage index for OpShowStage and a connection index otherwise.
type Op struct {
	At       time.Duration `json:"at"`
	Kind     OpKind        `json:"kind"`
	Index    int           `json:"index"`
	Fraction float64       `json:"fraction,omitempty"`
}

// Timeline is the ordered list of operations making up one animation cycle.
type Timeline struct {
	Cycle time.Duration `json:"cycle"`
	Ops   []Op          `json:"ops"`
}

// OpGroup collects the operations sharing one offset.
type OpGroup struct {
	At  time.Duration
	Ops []Op
}

// BuildTimeline compiles the diagram's reveal and travel sequence. Dashed
// connections are static and take no part in it.
func BuildTimeline(d *Diagram, t Timing) (Timeline, error) {
	if err := t.Validate(); err != nil {
		return Timeline{}, err
	}

	ops := []Op{{At: 0, Kind: OpReset, Index: -1}}
	for i := range d.stages {
		ops = append(ops, Op{At: time.Duration(i) * t.StepDelay, Kind: OpShowStage, Index: i})
	}

	frames := int((t.TravelDuration + t.FrameInterval - 1) / t.FrameInterval)
	primary := 0
	for j, c := range d.connections {
		if c.Dashed {
			continue
		}
		base := time.Duration(primary) * t.StepDelay
		primary++

		ops = append(ops, Op{At: base, Kind: OpShowConnection, Index: j})
		for k := 0; k <= frames; k++ {
			elapsed := time.Duration(k) * t.FrameInterval
			if elapsed > t.TravelDuration {
				elapsed = t.TravelDuration
			}
			ops = append(ops, Op{
				At:       base + elapsed,
				Kind:     OpMoveIndicator,
				Index:    j,
				Fraction: float64(elapsed) / float64(t.TravelDuration),
			})
		}
		ops = append(ops, Op{At: base + t.TravelDuration, Kind: OpRemoveIndicator, Index: j})
	}

	sort.SliceStable(ops, func(a, b int) bool { return ops[a].At < ops[b].At })

	// A lone stage with no pause would otherwise loop with a zero period.
	cycle := ops[len(ops)-1].At + t.Pause
	if cycle < t.StepDelay {
		cycle = t.StepDelay
	}
	return Timeline{Cycle: cycle, Ops: ops}, nil
}

// Groups splits the operations by offset, preserving order.
func (tl Timeline) Groups() []OpGroup {
	var groups []OpGroup
	for _, op := range tl.Ops {
		if n := len(groups); n > 0 && groups[n-1].At == op.At {
			groups[n-1].Ops = append(groups[n-1].Ops, op)
			continue
		}
		groups = append(groups, OpGroup{At: op.At, Ops: []Op{op}})
	}
	return groups
}

// StageRevealAt returns when stage i becomes visible within a cycle.
func (tl Timeline) StageRevealAt(i int) (time.Duration, bool) {
	for _, op := range tl.Ops {
		if op.Kind == OpShowStage && op.Index == i {
			return op.At, true
		}
	}
	return 0, false
}
