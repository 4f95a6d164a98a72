package governance

import (
	"fmt"
	"sync"

	"github.com/operator-ai/deskpilot/internal/plan"
)

// GateState is the admission-control state machine:
// Idle -> Previewing -> {Running | Rejected}. Rejected is terminal for the
// submitted plan; Finish returns the gate to Idle for the next one.
type GateState string

const (
	GateIdle       GateState = "idle"
	GatePreviewing GateState = "previewing"
	GateRunning    GateState = "running"
	GateRejected   GateState = "rejected"
)

// RunMode selects how an approved plan executes.
type RunMode string

const (
	// RunAll executes the whole plan without pausing.
	RunAll RunMode = "all"
	// RunStepwise pauses after every primitive awaiting a continue.
	RunStepwise RunMode = "stepwise"
)

// Gate is the sole admission control on side-effecting operations. The
// execution engine must call Authorize before every primitive; reaching
// the host without passing the gate is a programming error, not a runtime
// condition, and panics.
type Gate struct {
	mu    sync.Mutex
	state GateState
	mode  RunMode
	plan  *plan.Plan
}

// NewGate returns an idle gate.
func NewGate() *Gate {
	return &Gate{state: GateIdle}
}

// State returns the current gate state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Mode returns the run mode chosen at approval time.
func (g *Gate) Mode() RunMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

// Preview admits a pending plan for operator review. No primitive may
// execute while the gate is previewing.
func (g *Gate) Preview(p *plan.Plan) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GateIdle {
		return fmt.Errorf("gate is %s, cannot preview a new plan", g.state)
	}
	if p.Resolution != plan.ResolutionPending {
		return fmt.Errorf("plan %s is %s, only pending plans can be previewed", p.ID, p.Resolution)
	}
	g.state = GatePreviewing
	g.plan = p
	return nil
}

// Approve transitions Previewing -> Running in the given mode and marks
// the plan approved.
func (g *Gate) Approve(mode RunMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GatePreviewing {
		return fmt.Errorf("gate is %s, nothing to approve", g.state)
	}
	if err := g.plan.Approve(); err != nil {
		return err
	}
	g.state = GateRunning
	g.mode = mode
	return nil
}

// Edit hands back an edited plan and returns the gate to Idle. The caller
// re-submits the edited plan through Preview after re-classification.
func (g *Gate) Edit() (*plan.Plan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GatePreviewing {
		return nil, fmt.Errorf("gate is %s, nothing to edit", g.state)
	}
	p := g.plan
	g.state = GateIdle
	g.plan = nil
	return p, nil
}

// Cancel rejects the previewed plan. Terminal for the plan.
func (g *Gate) Cancel() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GatePreviewing {
		return fmt.Errorf("gate is %s, nothing to cancel", g.state)
	}
	if err := g.plan.Reject(); err != nil {
		return err
	}
	g.state = GateRejected
	return nil
}

// Finish returns the gate to Idle once a run completes or a rejected plan
// has been surfaced.
func (g *Gate) Finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = GateIdle
	g.plan = nil
}

// Authorize asserts the gate is running the given plan. Called by the
// execution engine before every primitive.
func (g *Gate) Authorize(p *plan.Plan) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GateRunning || g.plan == nil || g.plan.ID != p.ID {
		panic(fmt.Sprintf("execution attempted while gate is %s for plan %s", g.state, p.ID))
	}
}

// AutoApprovable reports whether every step in the plan is safe; only such
// plans may bypass operator review during a healing retry.
func AutoApprovable(p *plan.Plan) bool {
	for _, s := range p.Steps {
		if s.Risk != plan.RiskSafe {
			return false
		}
	}
	return len(p.Steps) > 0
}
