package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/operator-ai/deskpilot/internal/action"
)

// RiskLevel is assigned per Step at compile time and never re-evaluated
// mid-run.
type RiskLevel string

const (
	RiskSafe          RiskLevel = "safe"
	RiskNeedsApproval RiskLevel = "needs_approval"
	RiskManual        RiskLevel = "manual"
)

// Resolution records the operator's decision on a plan.
type Resolution string

const (
	ResolutionPending  Resolution = "pending"
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
)

// Status tracks the run lifecycle after approval.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// VerifyResult is the outcome of post-primitive verification for one step.
type VerifyResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Step is one segment of the user request together with its compiled
// primitives. Primitives are immutable once the owning plan is approved;
// only the Observe/Intent/Verify fields change during execution.
type Step struct {
	Index        int                `json:"index"`
	SourcePhrase string             `json:"source_phrase"`
	Primitives   []action.Primitive `json:"primitives"`
	Risk         RiskLevel          `json:"risk"`
	Observe      string             `json:"observe,omitempty"`
	Intent       string             `json:"intent,omitempty"`
	Verify       *VerifyResult      `json:"verify,omitempty"`
}

// ExecutionResult captures one primitive invocation. Append-only; never
// mutated after creation.
type ExecutionResult struct {
	StepIndex      int    `json:"step_index"`
	PrimitiveIndex int    `json:"primitive_index"`
	ExitCode       int    `json:"exit_code"`
	Stdout         string `json:"stdout"`
	Stderr         string `json:"stderr"`
	DurationMs     int64  `json:"duration_ms"`
}

// TimelineRecord is one Observe/Intent/Actions/Verify entry, consumed by
// the display layer and the audit store.
type TimelineRecord struct {
	StepIndex int           `json:"step_index"`
	Observe   string        `json:"observe"`
	Intent    string        `json:"intent"`
	Actions   []string      `json:"actions"`
	Verify    *VerifyResult `json:"verify,omitempty"`
}

// Plan is the ordered set of steps compiled from one request. A healing
// retry produces a new Plan rather than mutating the failed one, so the
// attempt history stays inspectable.
type Plan struct {
	ID         string            `json:"plan_id"`
	Request    string            `json:"request"`
	Steps      []Step            `json:"steps"`
	CreatedAt  time.Time         `json:"created_at"`
	Resolution Resolution        `json:"resolution"`
	Status     Status            `json:"status"`
	Attempt    int               `json:"attempt"`
	StopOnErr  bool              `json:"stop_on_error"`
	RunLog     []ExecutionResult `json:"run_log,omitempty"`
	Timeline   []TimelineRecord  `json:"timeline,omitempty"`
}

// New creates a pending plan for the given request.
func New(request string, steps []Step) *Plan {
	return &Plan{
		ID:         uuid.NewString(),
		Request:    request,
		Steps:      steps,
		CreatedAt:  time.Now(),
		Resolution: ResolutionPending,
		Status:     StatusPending,
		StopOnErr:  true,
	}
}

// Approve transitions the plan to Approved. Terminal plans cannot change.
func (p *Plan) Approve() error {
	if p.Resolution != ResolutionPending {
		return fmt.Errorf("plan %s is %s, cannot approve", p.ID, p.Resolution)
	}
	p.Resolution = ResolutionApproved
	return nil
}

// Reject transitions the plan to Rejected, a terminal state.
func (p *Plan) Reject() error {
	if p.Resolution != ResolutionPending {
		return fmt.Errorf("plan %s is %s, cannot reject", p.ID, p.Resolution)
	}
	p.Resolution = ResolutionRejected
	p.Status = StatusFailed
	return nil
}

// Terminal reports whether the plan reached a state that must not change.
func (p *Plan) Terminal() bool {
	return p.Resolution == ResolutionRejected ||
		p.Status == StatusDone || p.Status == StatusFailed
}

// AppendResult records one primitive invocation in the run log.
func (p *Plan) AppendResult(r ExecutionResult) {
	p.RunLog = append(p.RunLog, r)
}

// AppendTimeline records one timeline entry.
func (p *Plan) AppendTimeline(rec TimelineRecord) {
	p.Timeline = append(p.Timeline, rec)
}

// PrimitiveCount returns the total number of primitives across all steps.
func (p *Plan) PrimitiveCount() int {
	n := 0
	for _, s := range p.Steps {
		n += len(s.Primitives)
	}
	return n
}
