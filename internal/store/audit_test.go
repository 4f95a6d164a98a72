package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/operator-ai/deskpilot/internal/action"
	"github.com/operator-ai/deskpilot/internal/plan"
)

func openStore(t *testing.T) *AuditStore {
	t.Helper()
	s, err := NewAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storedPlan(request string, attempt int) *plan.Plan {
	p := plan.New(request, []plan.Step{{
		Index:        0,
		SourcePhrase: "open notepad",
		Risk:         plan.RiskNeedsApproval,
		Primitives: []action.Primitive{
			action.New(action.KindOpenApp, map[string]any{"app": "notepad"}, "open notepad"),
		},
	}})
	p.Attempt = attempt
	return p
}

func TestSavePlan_RoundTrip(t *testing.T) {
	s := openStore(t)
	p := storedPlan("open notepad", 1)
	p.AppendResult(plan.ExecutionResult{StepIndex: 0, ExitCode: 0, Stdout: "ok", DurationMs: 42})
	p.AppendTimeline(plan.TimelineRecord{
		StepIndex: 0,
		Observe:   "active window: Desktop",
		Intent:    "open notepad (open_app)",
		Actions:   []string{"open_app: open notepad"},
		Verify:    &plan.VerifyResult{Passed: true, Message: "window appeared"},
	})

	if err := s.SavePlan(p); err != nil {
		t.Fatal(err)
	}

	doc, err := s.ExportPlan(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	var got plan.Plan
	if err := json.Unmarshal(doc, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != p.ID || got.Request != p.Request {
		t.Errorf("exported plan = %s %q, want %s %q", got.ID, got.Request, p.ID, p.Request)
	}
	if len(got.Steps) != 1 || got.Steps[0].Risk != plan.RiskNeedsApproval {
		t.Errorf("exported steps = %+v", got.Steps)
	}
	if len(got.RunLog) != 1 || got.RunLog[0].DurationMs != 42 {
		t.Errorf("exported run log = %+v", got.RunLog)
	}

	records, err := s.Timeline(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d timeline records, want 1", len(records))
	}
	rec := records[0]
	if rec.Intent != "open notepad (open_app)" {
		t.Errorf("intent = %q", rec.Intent)
	}
	if len(rec.Actions) != 1 || rec.Actions[0] != "open_app: open notepad" {
		t.Errorf("actions = %v", rec.Actions)
	}
	if rec.Verify == nil || !rec.Verify.Passed || rec.Verify.Message != "window appeared" {
		t.Errorf("verify = %+v", rec.Verify)
	}
}

func TestSavePlan_UpsertReplacesState(t *testing.T) {
	s := openStore(t)
	p := storedPlan("open notepad", 1)
	if err := s.SavePlan(p); err != nil {
		t.Fatal(err)
	}

	if err := p.Approve(); err != nil {
		t.Fatal(err)
	}
	p.Status = plan.StatusDone
	p.AppendResult(plan.ExecutionResult{StepIndex: 0})
	if err := s.SavePlan(p); err != nil {
		t.Fatal(err)
	}

	doc, err := s.ExportPlan(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	var got plan.Plan
	if err := json.Unmarshal(doc, &got); err != nil {
		t.Fatal(err)
	}
	if got.Resolution != plan.ResolutionApproved || got.Status != plan.StatusDone {
		t.Errorf("stored state = %s/%s, want approved/done", got.Resolution, got.Status)
	}
	if len(got.RunLog) != 1 {
		t.Errorf("run log has %d entries after resave, want 1", len(got.RunLog))
	}
}

func TestAttemptHistory(t *testing.T) {
	s := openStore(t)
	request := "open notepad and type hi"
	for attempt := 1; attempt <= 3; attempt++ {
		if err := s.SavePlan(storedPlan(request, attempt)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SavePlan(storedPlan("unrelated request", 1)); err != nil {
		t.Fatal(err)
	}

	history, err := s.AttemptHistory(request)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history has %d plans, want 3", len(history))
	}
	for i, p := range history {
		if p.Attempt != i+1 {
			t.Errorf("history[%d].Attempt = %d, want %d", i, p.Attempt, i+1)
		}
		if p.Request != request {
			t.Errorf("history[%d] is for %q", i, p.Request)
		}
	}
}

func TestExportPlan_Missing(t *testing.T) {
	s := openStore(t)
	if _, err := s.ExportPlan("no-such-plan"); err == nil {
		t.Error("expected error for an unknown plan id")
	}
}
