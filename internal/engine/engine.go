package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/operator-ai/deskpilot/internal/action"
	"github.com/operator-ai/deskpilot/internal/governance"
	"github.com/operator-ai/deskpilot/internal/host"
	"github.com/operator-ai/deskpilot/internal/observability"
	"github.com/operator-ai/deskpilot/internal/plan"
	"github.com/operator-ai/deskpilot/internal/vision"
)

const (
	// DefaultPrimitiveTimeout bounds a single host invocation.
	DefaultPrimitiveTimeout = 30 * time.Second
	// DefaultSettleDelay lets UI state catch up between primitives.
	DefaultSettleDelay = 300 * time.Millisecond
)

// StepFailure is the recoverable execution failure routed to the healing
// layer. It carries everything the healer needs: the failing primitive,
// its raw output, and where in the plan it sat.
type StepFailure struct {
	StepIndex      int
	PrimitiveIndex int
	Primitive      action.Primitive
	Result         host.Result
}

func (f *StepFailure) Error() string {
	return fmt.Sprintf("step %d primitive %d (%s) failed with exit %d: %s",
		f.StepIndex, f.PrimitiveIndex, f.Primitive.Kind, f.Result.ExitCode, f.Result.Stderr)
}

// Verifier confirms a primitive's effect beyond its exit code.
type Verifier interface {
	Verify(ctx context.Context, prim action.Primitive, res host.Result) plan.VerifyResult
}

// Observer describes the current screen state for the timeline.
type Observer interface {
	ActiveWindow(ctx context.Context) string
}

// Pauser blocks between primitives during a stepwise run until the
// operator continues.
type Pauser interface {
	AwaitContinue(ctx context.Context, prim action.Primitive) error
}

// Engine runs an approved plan one primitive at a time, strictly in order
// within a step and steps strictly in order within the plan. The engine is
// the only component that invokes the automation hosts.
type Engine struct {
	Hosts    []host.Host
	Vision   *vision.Vision
	Verifier Verifier
	Gate     *governance.Gate
	Observer Observer
	Pauser   Pauser
	Log      *observability.Logger

	PrimitiveTimeout time.Duration
	SettleDelay      time.Duration
}

// New returns an engine with default timings.
func New(hosts []host.Host, vis *vision.Vision, verifier Verifier, gate *governance.Gate, log *observability.Logger) *Engine {
	return &Engine{
		Hosts:            hosts,
		Vision:           vis,
		Verifier:         verifier,
		Gate:             gate,
		Log:              log,
		PrimitiveTimeout: DefaultPrimitiveTimeout,
		SettleDelay:      DefaultSettleDelay,
	}
}

// Run executes every step of an approved plan. On a primitive failure with
// the plan's stop-on-error policy set, remaining primitives are aborted
// and a *StepFailure is returned for the healing layer; with the policy
// unset the failure is recorded and execution continues.
func (e *Engine) Run(ctx context.Context, p *plan.Plan) error {
	if p.Resolution != plan.ResolutionApproved {
		return fmt.Errorf("plan %s is %s, refusing to run", p.ID, p.Resolution)
	}
	p.Status = plan.StatusRunning

	var firstFailure *StepFailure
	for si := range p.Steps {
		// Cancellation is cooperative and checked between primitives
		// only; an in-flight native call cannot be safely interrupted.
		if err := ctx.Err(); err != nil {
			p.Status = plan.StatusFailed
			return err
		}
		failure, err := e.runStep(ctx, p, si)
		if err != nil {
			p.Status = plan.StatusFailed
			return err
		}
		if failure != nil {
			if firstFailure == nil {
				firstFailure = failure
			}
			if p.StopOnErr {
				p.Status = plan.StatusFailed
				return failure
			}
		}
	}

	if firstFailure != nil {
		p.Status = plan.StatusFailed
		return firstFailure
	}
	p.Status = plan.StatusDone
	return nil
}

// runStep executes one step's primitives. A returned *StepFailure is the
// recoverable path; a returned error aborts the plan.
func (e *Engine) runStep(ctx context.Context, p *plan.Plan, si int) (*StepFailure, error) {
	step := &p.Steps[si]
	step.Observe = e.observe(ctx)

	var actions []string
	var failure *StepFailure

	for pi, prim := range step.Primitives {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.Gate.Authorize(p)

		result, resolved := e.invoke(ctx, prim)
		p.AppendResult(plan.ExecutionResult{
			StepIndex:      si,
			PrimitiveIndex: pi,
			ExitCode:       result.ExitCode,
			Stdout:         result.Stdout,
			Stderr:         result.Stderr,
			DurationMs:     resolved.durationMs,
		})
		actions = append(actions, prim.String())
		e.Log.LogExecute(p.ID, si, pi, string(prim.Kind), result.ExitCode, resolved.durationMs)

		verdict := e.Verifier.Verify(ctx, prim, result)
		step.Verify = &verdict
		e.Log.LogVerify(p.ID, si, verdict.Passed, verdict.Message)

		if result.ExitCode != 0 || !verdict.Passed {
			failure = &StepFailure{
				StepIndex:      si,
				PrimitiveIndex: pi,
				Primitive:      prim,
				Result:         result,
			}
			if failure.Result.Stderr == "" && !verdict.Passed {
				failure.Result.Stderr = verdict.Message
			}
			if p.StopOnErr {
				break
			}
		}

		e.settle(ctx)

		if e.Pauser != nil && e.Gate.Mode() == governance.RunStepwise {
			if err := e.Pauser.AwaitContinue(ctx, prim); err != nil {
				return nil, err
			}
		}
	}

	p.AppendTimeline(plan.TimelineRecord{
		StepIndex: si,
		Observe:   step.Observe,
		Intent:    step.Intent,
		Actions:   actions,
		Verify:    step.Verify,
	})
	return failure, nil
}

// invokeMeta carries per-invocation measurements.
type invokeMeta struct {
	durationMs int64
}

// invoke resolves vision-deferred primitives and dispatches to the first
// host supporting the kind, bounded by the primitive timeout.
func (e *Engine) invoke(ctx context.Context, prim action.Primitive) (host.Result, invokeMeta) {
	start := time.Now()
	primCtx, cancel := context.WithTimeout(ctx, e.PrimitiveTimeout)
	defer cancel()

	var result host.Result
	var err error
	switch prim.Kind {
	case action.KindFindText:
		result, err = e.findText(primCtx, prim, false)
	case action.KindClickOnText:
		result, err = e.findText(primCtx, prim, true)
	default:
		result, err = e.dispatch(primCtx, prim)
	}
	if err != nil {
		result = host.Result{ExitCode: 1, Stderr: err.Error()}
	}
	return result, invokeMeta{durationMs: time.Since(start).Milliseconds()}
}

func (e *Engine) dispatch(ctx context.Context, prim action.Primitive) (host.Result, error) {
	for _, h := range e.Hosts {
		if h.Supports(prim.Kind) {
			return h.Invoke(ctx, prim)
		}
	}
	return host.Result{}, fmt.Errorf("no automation host supports %s", prim.Kind)
}

// findText resolves an on-screen text query and, when click is set,
// synthesizes a click at the returned point. A vision miss is a
// recoverable failure, not an error.
func (e *Engine) findText(ctx context.Context, prim action.Primitive, click bool) (host.Result, error) {
	if e.Vision == nil {
		return host.Result{}, fmt.Errorf("vision subsystem is not configured")
	}
	query := prim.StringParam("text")
	point, err := e.Vision.FindText(ctx, query)
	if err != nil {
		if errors.Is(err, vision.ErrNotFound) {
			return host.Result{ExitCode: 1, Stderr: fmt.Sprintf("text %q not found on screen", query)}, nil
		}
		return host.Result{}, err
	}
	if !click {
		return host.Result{Stdout: fmt.Sprintf("found %q at (%d, %d)", query, point.X, point.Y)}, nil
	}

	button := prim.StringParam("button")
	if button == "" {
		button = "left"
	}
	clickPrim := action.New(action.KindMouseClick,
		map[string]any{"x": point.X, "y": point.Y, "button": button},
		"click %q at (%d, %d)", query, point.X, point.Y)
	return e.dispatch(ctx, clickPrim)
}

func (e *Engine) observe(ctx context.Context) string {
	if e.Observer == nil {
		return ""
	}
	obsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if title := e.Observer.ActiveWindow(obsCtx); title != "" {
		return fmt.Sprintf("active window: %s", title)
	}
	return ""
}

func (e *Engine) settle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(e.SettleDelay):
	}
}
