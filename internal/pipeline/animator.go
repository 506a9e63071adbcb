package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/denisenanni/portfolio/internal/timeutil"
)

// Canvas receives the visual mutations of a playing animation.
type Canvas interface {
	Reset()
	ShowStage(i int)
	ShowConnection(j int)
	MoveIndicator(j int, p Point)
	RemoveIndicator(j int)
	Pulse(j int, high bool)
}

// EventPulse is the Event kind emitted for pulse toggles.
const EventPulse = "pulse"

// Event is a serialisable canvas mutation.
type Event struct {
	Kind  string  `json:"kind"`
	Index int     `json:"index"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
	High  bool    `json:"high,omitempty"`
}

// CanvasFunc adapts an event sink to the Canvas interface.
type CanvasFunc func(Event)

func (f CanvasFunc) Reset()          { f(Event{Kind: OpReset.String(), Index: -1}) }
func (f CanvasFunc) ShowStage(i int) { f(Event{Kind: OpShowStage.String(), Index: i}) }
func (f CanvasFunc) ShowConnection(j int) {
	f(Event{Kind: OpShowConnection.String(), Index: j})
}
func (f CanvasFunc) MoveIndicator(j int, p Point) {
	f(Event{Kind: OpMoveIndicator.String(), Index: j, X: p.X, Y: p.Y})
}
func (f CanvasFunc) RemoveIndicator(j int) {
	f(Event{Kind: OpRemoveIndicator.String(), Index: j})
}
func (f CanvasFunc) Pulse(j int, high bool) {
	f(Event{Kind: EventPulse, Index: j, High: high})
}

// Animator plays a diagram's timeline on a clock. One Animator can drive
// any number of independent handles.
type Animator struct {
	diagram  *Diagram
	timing   Timing
	timeline Timeline
	groups   []OpGroup
	clock    timeutil.Clock
	log      *zap.Logger
}

// NewAnimator compiles the timeline for d. A nil clock means real time and a
// nil logger discards output.
func NewAnimator(d *Diagram, t Timing, clock timeutil.Clock, log *zap.Logger) (*Animator, error) {
	tl, err := BuildTimeline(d, t)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Animator{
		diagram:  d,
		timing:   t,
		timeline: tl,
		groups:   tl.Groups(),
		clock:    clock,
		log:      log,
	}, nil
}

// Timeline returns the compiled cycle.
func (a *Animator) Timeline() Timeline { return a.timeline }

// Diagram returns the animated diagram.
func (a *Animator) Diagram() *Diagram { return a.diagram }

// Start begins playing on canvas. Operations at offset zero are applied
// before Start returns; everything else runs from clock callbacks until the
// returned handle is stopped.
func (a *Animator) Start(canvas Canvas) *Handle {
	h := &Handle{
		a:        a,
		canvas:   canvas,
		timers:   make(map[uint64]timeutil.Timer),
		revealed: make([]bool, len(a.diagram.connections)),
		done:     make(chan struct{}),
	}
	h.turn = sync.NewCond(&h.paintMu)

	h.mu.Lock()
	h.startCycle()
	if half := a.timing.PulsePeriod / 2; half > 0 {
		h.schedule(half, h.pulse)
	}
	ticket, batch := h.flush()
	h.mu.Unlock()

	h.paint(ticket, batch)
	return h
}

// Run plays on canvas until ctx is done, stopping the handle on return.
func (a *Animator) Run(ctx context.Context, canvas Canvas) error {
	h := a.Start(canvas)
	defer h.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.Done():
		return nil
	}
}

// Handle owns the timers of one playing animation.
//
// Timer callbacks compute their canvas calls under mu, then make them
// without holding it, in the order the callbacks ran. The stopped flag is
// checked before every canvas call, so no call starts once Stop has
// returned. Canvas methods may call Stop, Cycles or Pending.
type Handle struct {
	a      *Animator
	canvas Canvas

	stopped atomic.Bool

	mu        sync.Mutex
	timers    map[uint64]timeutil.Timer
	nextID    uint64
	cycles    int
	revealed  []bool
	pulseHigh bool
	batch     []func(Canvas)
	tickets   uint64
	done      chan struct{}

	paintMu sync.Mutex
	turn    *sync.Cond
	serving uint64
}

// Stop cancels every pending timer. It is safe to call more than once, from
// any goroutine and from inside a canvas method.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped.CompareAndSwap(false, true) {
		return
	}
	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
	}
	h.batch = nil
	close(h.done)
	h.a.log.Debug("pipeline animation stopped", zap.Int("cycles", h.cycles))
}

// Done is closed once Stop has run.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cycles reports how many cycles have started.
func (h *Handle) Cycles() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cycles
}

// Pending reports the number of live timers.
func (h *Handle) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timers)
}

// schedule registers fn to run after d. Callers hold mu.
func (h *Handle) schedule(d time.Duration, fn func()) {
	h.nextID++
	id := h.nextID
	h.timers[id] = h.a.clock.AfterFunc(d, func() {
		h.mu.Lock()
		if h.stopped.Load() {
			h.mu.Unlock()
			return
		}
		delete(h.timers, id)
		fn()
		ticket, batch := h.flush()
		h.mu.Unlock()

		h.paint(ticket, batch)
	})
}

// flush hands out the queued canvas calls with the ticket fixing their
// place in the paint order. Callers hold mu.
func (h *Handle) flush() (uint64, []func(Canvas)) {
	batch := h.batch
	h.batch = nil
	ticket := h.tickets
	h.tickets++
	return ticket, batch
}

// paint waits for the earlier tickets, then makes the queued canvas calls.
// Every ticket is painted, even after Stop, so later ones never wait forever.
func (h *Handle) paint(ticket uint64, batch []func(Canvas)) {
	h.paintMu.Lock()
	for h.serving != ticket {
		h.turn.Wait()
	}
	h.paintMu.Unlock()

	for _, call := range batch {
		if h.stopped.Load() {
			break
		}
		call(h.canvas)
	}

	h.paintMu.Lock()
	h.serving++
	h.turn.Broadcast()
	h.paintMu.Unlock()
}

// startCycle queues the zero-offset operations and registers the rest of
// the cycle plus the loop timer up front. Callers hold mu.
func (h *Handle) startCycle() {
	h.cycles++
	for _, g := range h.a.groups {
		if g.At <= 0 {
			h.apply(g.Ops)
			continue
		}
		ops := g.Ops
		h.schedule(g.At, func() { h.apply(ops) })
	}
	h.schedule(h.a.timeline.Cycle, h.startCycle)
}

// apply queues the canvas calls for ops. Callers hold mu.
func (h *Handle) apply(ops []Op) {
	for _, op := range ops {
		i := op.Index
		switch op.Kind {
		case OpReset:
			for j := range h.revealed {
				h.revealed[j] = false
			}
			h.queue(func(c Canvas) { c.Reset() })
		case OpShowStage:
			h.queue(func(c Canvas) { c.ShowStage(i) })
		case OpShowConnection:
			h.revealed[i] = true
			h.queue(func(c Canvas) { c.ShowConnection(i) })
		case OpMoveIndicator:
			p := h.a.diagram.path(i).PointAt(op.Fraction)
			h.queue(func(c Canvas) { c.MoveIndicator(i, p) })
		case OpRemoveIndicator:
			h.queue(func(c Canvas) { c.RemoveIndicator(i) })
		}
	}
}

func (h *Handle) queue(call func(Canvas)) {
	h.batch = append(h.batch, call)
}

// pulse toggles revealed connections on its own period, independent of the
// cycle loop. Callers hold mu.
func (h *Handle) pulse() {
	h.pulseHigh = !h.pulseHigh
	high := h.pulseHigh
	for j, on := range h.revealed {
		if on {
			j := j
			h.queue(func(c Canvas) { c.Pulse(j, high) })
		}
	}
	h.schedule(h.a.timing.PulsePeriod/2, h.pulse)
}
