package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/operator-ai/deskpilot/internal/action"
	"github.com/operator-ai/deskpilot/internal/governance"
	"github.com/operator-ai/deskpilot/internal/host"
	"github.com/operator-ai/deskpilot/internal/observability"
	"github.com/operator-ai/deskpilot/internal/plan"
	"github.com/operator-ai/deskpilot/internal/vision"
)

type fakeHost struct {
	kinds   []action.Kind
	invoked []action.Primitive
	respond func(prim action.Primitive) (host.Result, error)
}

func (h *fakeHost) Invoke(ctx context.Context, prim action.Primitive) (host.Result, error) {
	h.invoked = append(h.invoked, prim)
	if h.respond != nil {
		return h.respond(prim)
	}
	return host.Result{}, nil
}

func (h *fakeHost) Supports(kind action.Kind) bool {
	for _, k := range h.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type fakeVerifier struct {
	fail map[action.Kind]string
}

func (v fakeVerifier) Verify(ctx context.Context, prim action.Primitive, res host.Result) plan.VerifyResult {
	if res.ExitCode != 0 {
		return plan.VerifyResult{Passed: false, Message: res.Stderr}
	}
	if msg, ok := v.fail[prim.Kind]; ok {
		return plan.VerifyResult{Passed: false, Message: msg}
	}
	return plan.VerifyResult{Passed: true, Message: "ok"}
}

type fakeCapturer struct{}

func (fakeCapturer) CaptureScreen(ctx context.Context) (string, error) {
	return "capture.png", nil
}

type fakeRecognizer struct {
	regions []vision.TextRegion
}

func (r fakeRecognizer) Recognize(ctx context.Context, imagePath string) ([]vision.TextRegion, error) {
	return r.regions, nil
}

func allKinds() []action.Kind { return action.Kinds }

// newEngine wires an engine over the fake host with an open gate and the
// plan already approved for a full run.
func newEngine(t *testing.T, h *fakeHost, v *vision.Vision, verifier Verifier, p *plan.Plan) *Engine {
	t.Helper()
	gate := governance.NewGate()
	if err := gate.Preview(p); err != nil {
		t.Fatal(err)
	}
	if err := gate.Approve(governance.RunAll); err != nil {
		t.Fatal(err)
	}
	e := New([]host.Host{h}, v, verifier, gate, observability.NewLogger())
	e.SettleDelay = 0
	return e
}

func twoStepPlan() *plan.Plan {
	return plan.New("open notepad and type hi", []plan.Step{
		{
			Index:        0,
			SourcePhrase: "open notepad",
			Risk:         plan.RiskNeedsApproval,
			Primitives: []action.Primitive{
				action.New(action.KindOpenApp, map[string]any{"app": "notepad"}, "open notepad"),
				action.New(action.KindWait, map[string]any{"ms": 100}, "wait 100 ms"),
			},
		},
		{
			Index:        1,
			SourcePhrase: "type hi",
			Risk:         plan.RiskSafe,
			Primitives: []action.Primitive{
				action.New(action.KindKeyboardType, map[string]any{"text": "hi"}, "type hi"),
			},
		},
	})
}

func TestRun_ExecutesInOrder(t *testing.T) {
	h := &fakeHost{kinds: allKinds()}
	p := twoStepPlan()
	e := newEngine(t, h, nil, fakeVerifier{}, p)

	if err := e.Run(context.Background(), p); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	wantOrder := []action.Kind{action.KindOpenApp, action.KindWait, action.KindKeyboardType}
	if len(h.invoked) != len(wantOrder) {
		t.Fatalf("invoked %d primitives, want %d", len(h.invoked), len(wantOrder))
	}
	for i, kind := range wantOrder {
		if h.invoked[i].Kind != kind {
			t.Errorf("invocation %d = %s, want %s", i, h.invoked[i].Kind, kind)
		}
	}
	if p.Status != plan.StatusDone {
		t.Errorf("status = %s, want done", p.Status)
	}
	if len(p.RunLog) != 3 {
		t.Errorf("run log has %d entries, want 3", len(p.RunLog))
	}
	if len(p.Timeline) != 2 {
		t.Errorf("timeline has %d records, want 2", len(p.Timeline))
	}
	if v := p.Steps[1].Verify; v == nil || !v.Passed {
		t.Errorf("final step verify = %+v, want passed", v)
	}
}

func TestRun_RefusesUnapprovedPlan(t *testing.T) {
	h := &fakeHost{kinds: allKinds()}
	p := twoStepPlan()
	gate := governance.NewGate()
	e := New([]host.Host{h}, nil, fakeVerifier{}, gate, observability.NewLogger())
	e.SettleDelay = 0

	if err := e.Run(context.Background(), p); err == nil {
		t.Fatal("running a pending plan should fail")
	}
	if len(h.invoked) != 0 {
		t.Errorf("%d primitives reached the host before approval", len(h.invoked))
	}
}

func TestRun_StopOnError(t *testing.T) {
	h := &fakeHost{kinds: allKinds()}
	h.respond = func(prim action.Primitive) (host.Result, error) {
		if prim.Kind == action.KindWait {
			return host.Result{ExitCode: 1, Stderr: "timer broke"}, nil
		}
		return host.Result{}, nil
	}
	p := twoStepPlan()
	e := newEngine(t, h, nil, fakeVerifier{}, p)

	err := e.Run(context.Background(), p)
	var failure *StepFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want *StepFailure", err)
	}
	if failure.StepIndex != 0 || failure.PrimitiveIndex != 1 {
		t.Errorf("failure at step %d primitive %d, want step 0 primitive 1",
			failure.StepIndex, failure.PrimitiveIndex)
	}
	if failure.Result.Stderr != "timer broke" {
		t.Errorf("stderr = %q, want the host output", failure.Result.Stderr)
	}
	// Step 1 never runs under stop-on-error.
	if len(h.invoked) != 2 {
		t.Errorf("invoked %d primitives, want 2", len(h.invoked))
	}
	if p.Status != plan.StatusFailed {
		t.Errorf("status = %s, want failed", p.Status)
	}
}

func TestRun_ContinueOnError(t *testing.T) {
	h := &fakeHost{kinds: allKinds()}
	h.respond = func(prim action.Primitive) (host.Result, error) {
		if prim.Kind == action.KindWait {
			return host.Result{ExitCode: 1, Stderr: "timer broke"}, nil
		}
		return host.Result{}, nil
	}
	p := twoStepPlan()
	p.StopOnErr = false
	e := newEngine(t, h, nil, fakeVerifier{}, p)

	err := e.Run(context.Background(), p)
	var failure *StepFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want *StepFailure", err)
	}
	if failure.StepIndex != 0 {
		t.Errorf("reported failure from step %d, want the first failure", failure.StepIndex)
	}
	// All primitives still ran.
	if len(h.invoked) != 3 {
		t.Errorf("invoked %d primitives, want 3", len(h.invoked))
	}
}

func TestRun_CancelBetweenPrimitives(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &fakeHost{kinds: allKinds()}
	h.respond = func(prim action.Primitive) (host.Result, error) {
		cancel()
		return host.Result{}, nil
	}
	p := twoStepPlan()
	e := newEngine(t, h, nil, fakeVerifier{}, p)

	err := e.Run(ctx, p)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(h.invoked) != 1 {
		t.Errorf("invoked %d primitives after cancel, want 1", len(h.invoked))
	}
	if p.Status != plan.StatusFailed {
		t.Errorf("status = %s, want failed", p.Status)
	}
}

func TestRun_VerifierFailureIsRecoverable(t *testing.T) {
	h := &fakeHost{kinds: allKinds()}
	p := twoStepPlan()
	e := newEngine(t, h, nil, fakeVerifier{
		fail: map[action.Kind]string{action.KindOpenApp: "no window named notepad appeared"},
	}, p)

	err := e.Run(context.Background(), p)
	var failure *StepFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want *StepFailure", err)
	}
	if failure.Result.Stderr != "no window named notepad appeared" {
		t.Errorf("stderr = %q, want the verify message", failure.Result.Stderr)
	}
}

func visionPlan(kind action.Kind, params map[string]any) *plan.Plan {
	return plan.New("find text", []plan.Step{{
		SourcePhrase: "find text",
		Risk:         plan.RiskSafe,
		Primitives:   []action.Primitive{action.New(kind, params, "look for text")},
	}})
}

func TestRun_VisionMissIsRecoverable(t *testing.T) {
	h := &fakeHost{kinds: allKinds()}
	vis := vision.New(fakeCapturer{}, fakeRecognizer{})
	p := visionPlan(action.KindFindText, map[string]any{"text": "Submit"})
	e := newEngine(t, h, vis, fakeVerifier{}, p)

	err := e.Run(context.Background(), p)
	var failure *StepFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want *StepFailure", err)
	}
	if !strings.Contains(failure.Result.Stderr, "not found") {
		t.Errorf("stderr = %q, want a not-found message", failure.Result.Stderr)
	}
	if len(h.invoked) != 0 {
		t.Errorf("a vision miss reached the host: %v", h.invoked)
	}
}

func TestRun_ClickOnTextSynthesizesClick(t *testing.T) {
	h := &fakeHost{kinds: allKinds()}
	vis := vision.New(fakeCapturer{}, fakeRecognizer{regions: []vision.TextRegion{
		{Text: "Submit", Box: vision.Box{Left: 100, Top: 200, Width: 60, Height: 20}, Line: 1, Word: 1},
	}})
	p := visionPlan(action.KindClickOnText, map[string]any{"text": "Submit"})
	e := newEngine(t, h, vis, fakeVerifier{}, p)

	if err := e.Run(context.Background(), p); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(h.invoked) != 1 {
		t.Fatalf("invoked %d primitives, want 1 synthesized click", len(h.invoked))
	}
	click := h.invoked[0]
	if click.Kind != action.KindMouseClick {
		t.Fatalf("kind = %s, want mouse_click", click.Kind)
	}
	if click.IntParam("x") != 130 || click.IntParam("y") != 210 {
		t.Errorf("click at (%d, %d), want the centroid (130, 210)",
			click.IntParam("x"), click.IntParam("y"))
	}
	if click.StringParam("button") != "left" {
		t.Errorf("button = %q, want left", click.StringParam("button"))
	}
}

func TestRun_NoHostForKind(t *testing.T) {
	h := &fakeHost{kinds: []action.Kind{action.KindWait}}
	p := visionPlan(action.KindShellCommand, map[string]any{"command": "ls"})
	e := newEngine(t, h, nil, fakeVerifier{}, p)

	err := e.Run(context.Background(), p)
	var failure *StepFailure
	if !errors.As(err, &failure) {
		t.Fatalf("error = %v, want *StepFailure", err)
	}
	if !strings.Contains(failure.Result.Stderr, "no automation host") {
		t.Errorf("stderr = %q, want an unsupported-kind message", failure.Result.Stderr)
	}
}
