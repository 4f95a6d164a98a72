package governance

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/operator-ai/deskpilot/internal/action"
	"github.com/operator-ai/deskpilot/internal/plan"
)

func step(prims ...action.Primitive) plan.Step {
	return plan.Step{Primitives: prims}
}

func TestClassifyStep_Defaults(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		name string
		step plan.Step
		want plan.RiskLevel
	}{
		{
			name: "keyboard input is safe",
			step: step(action.New(action.KindKeyboardType, map[string]any{"text": "hi"}, "type")),
			want: plan.RiskSafe,
		},
		{
			name: "shell command needs approval",
			step: step(action.New(action.KindShellCommand, map[string]any{"command": "ls"}, "run")),
			want: plan.RiskNeedsApproval,
		},
		{
			name: "highest risk among primitives wins",
			step: step(
				action.New(action.KindWait, map[string]any{"ms": 100}, "wait"),
				action.New(action.KindOpenURL, map[string]any{"url": "https://example.com"}, "nav"),
				action.New(action.KindKeyboardPress, map[string]any{"key": "Return"}, "press"),
			),
			want: plan.RiskNeedsApproval,
		},
	}

	for _, tc := range cases {
		got, err := c.ClassifyStep(tc.step)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: risk = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyStep_UnknownKindIsFatal(t *testing.T) {
	c := NewClassifier()
	_, err := c.ClassifyStep(step(action.Primitive{Kind: "teleport"}))
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("error = %v, want ErrUnknownKind", err)
	}
}

func TestClassifyStep_Deterministic(t *testing.T) {
	c := NewClassifier()
	s := step(
		action.New(action.KindOpenApp, map[string]any{"app": "notepad"}, "open"),
		action.New(action.KindKeyboardType, map[string]any{"text": "x"}, "type"),
	)
	first, err := c.ClassifyStep(s)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		got, err := c.ClassifyStep(s)
		if err != nil {
			t.Fatal(err)
		}
		if got != first {
			t.Fatalf("classification changed between calls: %s then %s", first, got)
		}
	}
}

func TestManualTargets(t *testing.T) {
	c := NewClassifier()
	if err := c.AddManualTarget(`rm\s+-rf`); err != nil {
		t.Fatal(err)
	}
	if err := c.AddManualTarget(`(?i)prod-`); err != nil {
		t.Fatal(err)
	}

	got, err := c.ClassifyStep(step(action.New(action.KindShellCommand,
		map[string]any{"command": "rm -rf /tmp/scratch"}, "run")))
	if err != nil {
		t.Fatal(err)
	}
	if got != plan.RiskManual {
		t.Errorf("destructive command risk = %s, want %s", got, plan.RiskManual)
	}

	// A safe kind whose target matches is still forced to manual.
	got, err = c.ClassifyStep(step(action.New(action.KindKeyboardType,
		map[string]any{"text": "ssh PROD-db-01"}, "type")))
	if err != nil {
		t.Fatal(err)
	}
	if got != plan.RiskManual {
		t.Errorf("prod-targeting input risk = %s, want %s", got, plan.RiskManual)
	}

	got, err = c.ClassifyStep(step(action.New(action.KindShellCommand,
		map[string]any{"command": "ls -la"}, "run")))
	if err != nil {
		t.Fatal(err)
	}
	if got != plan.RiskNeedsApproval {
		t.Errorf("benign command risk = %s, want %s", got, plan.RiskNeedsApproval)
	}
}

func TestAddManualTarget_InvalidPattern(t *testing.T) {
	c := NewClassifier()
	if err := c.AddManualTarget(`(unclosed`); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestClassify_FillsSteps(t *testing.T) {
	c := NewClassifier()
	steps := []plan.Step{
		step(action.New(action.KindWait, map[string]any{"ms": 1000}, "wait")),
		step(action.New(action.KindOpenApp, map[string]any{"app": "notepad"}, "open")),
	}
	if err := c.Classify(steps); err != nil {
		t.Fatal(err)
	}
	if steps[0].Risk != plan.RiskSafe {
		t.Errorf("step 0 risk = %s, want %s", steps[0].Risk, plan.RiskSafe)
	}
	if steps[1].Risk != plan.RiskNeedsApproval {
		t.Errorf("step 1 risk = %s, want %s", steps[1].Risk, plan.RiskNeedsApproval)
	}
}

func TestLoadClassifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
kinds:
  open_url: safe
  screenshot: needs_approval
manual_targets:
  - 'shutdown'
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadClassifier(path)
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.ClassifyStep(step(action.New(action.KindOpenURL,
		map[string]any{"url": "https://example.com"}, "nav")))
	if err != nil {
		t.Fatal(err)
	}
	if got != plan.RiskSafe {
		t.Errorf("overridden open_url risk = %s, want %s", got, plan.RiskSafe)
	}

	got, err = c.ClassifyStep(step(action.New(action.KindScreenshot, nil, "capture")))
	if err != nil {
		t.Fatal(err)
	}
	if got != plan.RiskNeedsApproval {
		t.Errorf("overridden screenshot risk = %s, want %s", got, plan.RiskNeedsApproval)
	}

	// Kinds absent from the file keep their defaults.
	got, err = c.ClassifyStep(step(action.New(action.KindShellCommand,
		map[string]any{"command": "ls"}, "run")))
	if err != nil {
		t.Fatal(err)
	}
	if got != plan.RiskNeedsApproval {
		t.Errorf("default shell_command risk = %s, want %s", got, plan.RiskNeedsApproval)
	}

	got, err = c.ClassifyStep(step(action.New(action.KindShellCommand,
		map[string]any{"command": "sudo shutdown now"}, "run")))
	if err != nil {
		t.Fatal(err)
	}
	if got != plan.RiskManual {
		t.Errorf("manual target risk = %s, want %s", got, plan.RiskManual)
	}
}

func TestLoadClassifier_RejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("kinds:\n  levitate: safe\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadClassifier(path); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("error = %v, want ErrUnknownKind", err)
	}
}

func TestLoadClassifier_RejectsInvalidLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("kinds:\n  wait: mostly_fine\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadClassifier(path); err == nil {
		t.Error("expected error for invalid risk level")
	}
}
