package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/operator-ai/deskpilot/internal/compile"
	"github.com/operator-ai/deskpilot/internal/engine"
	"github.com/operator-ai/deskpilot/internal/governance"
	"github.com/operator-ai/deskpilot/internal/observability"
	"github.com/operator-ai/deskpilot/internal/plan"
	"github.com/operator-ai/deskpilot/internal/store"
)

// Decision is the operator's call on a previewed plan.
type Decision string

const (
	DecisionRunAll      Decision = "run_all"
	DecisionRunStepwise Decision = "run_stepwise"
	DecisionEdit        Decision = "edit"
	DecisionCancel      Decision = "cancel"
)

// Review is one operator response to a previewed plan. Edited carries the
// modified plan when the decision is edit.
type Review struct {
	Decision Decision
	Edited   *plan.Plan
}

// Approver surfaces a previewed plan to the operator and returns their
// decision.
type Approver interface {
	Review(ctx context.Context, p *plan.Plan) (Review, error)
}

// Notifier pushes plan lifecycle notices to an out-of-band channel
// (Telegram, for instance). Optional.
type Notifier interface {
	Send(text string) error
}

// RequestContext is informational caller context. It never changes
// primitive semantics, only what gets logged.
type RequestContext struct {
	ActiveFiles   []string
	RecentActions []string
	Cwd           string
}

// Session runs one plan at a time: automation primitives mutate shared
// external state (the screen, the focused window), so concurrent plans
// would race on it.
type Session struct {
	mu sync.Mutex

	Classifier *governance.Classifier
	Gate       *governance.Gate
	Engine     *engine.Engine
	Healer     *Healer
	Approver   Approver
	Notifier   Notifier
	Store      *store.AuditStore
	Log        *observability.Logger

	MaxAttempts int
}

// NewSession wires a session with the default retry budget.
func NewSession(classifier *governance.Classifier, gate *governance.Gate, eng *engine.Engine, healer *Healer, approver Approver, log *observability.Logger) *Session {
	return &Session{
		Classifier:  classifier,
		Gate:        gate,
		Engine:      eng,
		Healer:      healer,
		Approver:    approver,
		Log:         log,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// CompileAndRun turns a request into a classified plan, gates it, executes
// it, and heals failures within the retry budget. The returned plan is the
// last attempt; on rejection it is returned with a nil error since a
// declined plan is an outcome, not a failure.
func (s *Session) CompileAndRun(ctx context.Context, request string, reqCtx RequestContext) (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	phrases := compile.Segment(request)
	s.Log.LogSegment(request, phrases)
	if len(phrases) == 0 {
		return nil, fmt.Errorf("request %q produced no steps", request)
	}

	steps := compile.Compile(request)
	if err := s.Classifier.Classify(steps); err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	p := plan.New(request, steps)
	p.Attempt = 1
	s.logPlan(p, reqCtx)

	rc := RetryContext{Attempt: 1, MaxAttempts: s.MaxAttempts, OriginalRequest: request}

	defer observability.SetStatus(observability.PhaseIdle, "")

	for {
		observability.SetStatus(observability.PhasePreviewing, request)
		approved, err := s.gatePlan(ctx, p, rc.Attempt > 1)
		if err != nil {
			return p, err
		}
		if !approved {
			s.persist(p)
			return p, nil // ApprovalRejected: terminal, not an error
		}
		s.persist(p)

		observability.SetStatus(observability.PhaseExecuting, request)
		runErr := s.Engine.Run(ctx, p)
		s.Gate.Finish()
		s.persist(p)
		s.Log.LogPlanStatus(p.ID, string(p.Resolution), string(p.Status), p.Attempt)

		if runErr == nil {
			s.notify(fmt.Sprintf("Plan %s completed: %s", p.ID, request))
			return p, nil
		}

		var failure *engine.StepFailure
		if !errors.As(runErr, &failure) {
			return p, runErr
		}

		rc.LastError = failure.Result.Stderr
		s.Log.LogHeal(p.ID, rc.Attempt, rc.MaxAttempts, rc.LastError)

		if rc.Attempt >= rc.MaxAttempts {
			err := &HealingExhaustedError{
				Attempts:      rc.Attempt,
				LastPrimitive: failure.Primitive.Description,
				Stderr:        failure.Result.Stderr,
			}
			s.notify(fmt.Sprintf("Plan failed after %d attempts: %s", rc.Attempt, request))
			return p, err
		}

		observability.SetStatus(observability.PhaseHealing, request)
		healed, err := s.heal(ctx, p, rc, failure)
		if err != nil {
			return p, err
		}
		rc.Attempt++
		healed.Attempt = rc.Attempt
		p = healed
		s.Log.LogCompile(p.ID, len(p.Steps), p.PrimitiveCount())
	}
}

// gatePlan runs the approval cycle: preview, operator review, and any
// number of edit round-trips. Healing retries whose steps are all safe
// auto-approve; everything else waits for the operator. Returns false when
// the operator cancels.
func (s *Session) gatePlan(ctx context.Context, p *plan.Plan, healingRetry bool) (bool, error) {
	if healingRetry && governance.AutoApprovable(p) {
		if err := s.Gate.Preview(p); err != nil {
			return false, err
		}
		if err := s.Gate.Approve(governance.RunAll); err != nil {
			return false, err
		}
		s.Log.LogApproval(p.ID, "auto")
		return true, nil
	}

	for {
		if err := s.Gate.Preview(p); err != nil {
			return false, err
		}
		s.notify(fmt.Sprintf("Plan %s awaits approval (%d steps)", p.ID, len(p.Steps)))

		review, err := s.Approver.Review(ctx, p)
		if err != nil {
			// Treat a failed review channel as a cancel; never run
			// an unreviewed plan.
			_ = s.Gate.Cancel()
			s.Gate.Finish()
			return false, err
		}

		switch review.Decision {
		case DecisionRunAll, DecisionRunStepwise:
			mode := governance.RunAll
			if review.Decision == DecisionRunStepwise {
				mode = governance.RunStepwise
			}
			if err := s.Gate.Approve(mode); err != nil {
				return false, err
			}
			s.Log.LogApproval(p.ID, string(review.Decision))
			return true, nil

		case DecisionEdit:
			if _, err := s.Gate.Edit(); err != nil {
				return false, err
			}
			if review.Edited == nil {
				continue // nothing changed, preview again
			}
			if err := s.Classifier.Classify(review.Edited.Steps); err != nil {
				return false, fmt.Errorf("classification of edited plan failed: %w", err)
			}
			*p = *review.Edited
			s.Log.LogApproval(p.ID, "edited")

		case DecisionCancel:
			if err := s.Gate.Cancel(); err != nil {
				return false, err
			}
			s.Log.LogApproval(p.ID, "cancelled")
			s.Gate.Finish()
			return false, nil

		default:
			_ = s.Gate.Cancel()
			s.Gate.Finish()
			return false, fmt.Errorf("unknown approval decision %q", review.Decision)
		}
	}
}

// heal builds the next attempt: the healed fragment replaces the failed
// step, followed by the steps that never ran. A new plan is created so the
// failed attempt stays in the audit trail untouched.
func (s *Session) heal(ctx context.Context, failed *plan.Plan, rc RetryContext, failure *engine.StepFailure) (*plan.Plan, error) {
	failedStep := failed.Steps[failure.StepIndex]
	healedSteps, err := s.Healer.HealStep(ctx, rc, failedStep, failure)
	if err != nil {
		return nil, err
	}

	var steps []plan.Step
	steps = append(steps, healedSteps...)
	for _, st := range failed.Steps[failure.StepIndex+1:] {
		st.Observe, st.Verify = "", nil
		steps = append(steps, st)
	}
	for i := range steps {
		steps[i].Index = i
	}

	if err := s.Classifier.Classify(steps); err != nil {
		return nil, fmt.Errorf("classification of healed plan failed: %w", err)
	}
	return plan.New(failed.Request, steps), nil
}

func (s *Session) logPlan(p *plan.Plan, reqCtx RequestContext) {
	s.Log.LogCompile(p.ID, len(p.Steps), p.PrimitiveCount())
	for _, st := range p.Steps {
		s.Log.LogClassify(p.ID, st.Index, string(st.Risk))
	}
	if reqCtx.Cwd != "" || len(reqCtx.ActiveFiles) > 0 {
		s.Log.Log(observability.Event{
			Type:   observability.EventTypePlan,
			PlanID: p.ID,
			Data: map[string]any{
				"cwd":            reqCtx.Cwd,
				"active_files":   reqCtx.ActiveFiles,
				"recent_actions": reqCtx.RecentActions,
			},
		})
	}
}

func (s *Session) persist(p *plan.Plan) {
	if s.Store == nil {
		return
	}
	if err := s.Store.SavePlan(p); err != nil {
		s.Log.Log(observability.Event{
			Type:   observability.EventTypePlan,
			PlanID: p.ID,
			Data:   map[string]string{"persist_error": err.Error()},
		})
	}
}

func (s *Session) notify(text string) {
	if s.Notifier == nil {
		return
	}
	_ = s.Notifier.Send(text)
}
