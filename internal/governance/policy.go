package governance

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/operator-ai/deskpilot/internal/action"
	"github.com/operator-ai/deskpilot/internal/plan"
)

// ErrUnknownKind is wrapped into the classification error returned when a
// primitive kind has no policy entry. Unlike execution failures this is
// fatal to the plan: an unclassifiable primitive must never reach the gate.
var ErrUnknownKind = fmt.Errorf("unknown primitive kind")

// Classifier assigns a risk level to each compiled step. Classification
// happens once at compile time and is never re-evaluated mid-run.
type Classifier struct {
	kindRisk    map[action.Kind]plan.RiskLevel
	manualRegex []*regexp.Regexp
}

// defaultKindRisk is the built-in policy table. Local read-only primitives
// are safe; anything that launches a process or reaches the network needs
// approval.
func defaultKindRisk() map[action.Kind]plan.RiskLevel {
	return map[action.Kind]plan.RiskLevel{
		action.KindMouseClick:    plan.RiskSafe,
		action.KindMouseMove:     plan.RiskSafe,
		action.KindKeyboardType:  plan.RiskSafe,
		action.KindKeyboardPress: plan.RiskSafe,
		action.KindScreenshot:    plan.RiskSafe,
		action.KindWait:          plan.RiskSafe,
		action.KindScroll:        plan.RiskSafe,
		action.KindFindText:      plan.RiskSafe,
		action.KindClickOnText:   plan.RiskSafe,
		action.KindOpenApp:       plan.RiskNeedsApproval,
		action.KindOpenURL:       plan.RiskNeedsApproval,
		action.KindShellCommand:  plan.RiskNeedsApproval,
	}
}

// NewClassifier returns a classifier with the default policy table.
func NewClassifier() *Classifier {
	return &Classifier{kindRisk: defaultKindRisk()}
}

// policyFile is the on-disk shape of a policy override file.
type policyFile struct {
	Kinds         map[string]string `yaml:"kinds"`
	ManualTargets []string          `yaml:"manual_targets"`
}

// LoadClassifier reads a YAML policy file and overlays it on the default
// table. Kinds absent from the file keep their defaults.
func LoadClassifier(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	c := NewClassifier()
	for kind, level := range pf.Kinds {
		k := action.Kind(kind)
		if !action.Known(k) {
			return nil, fmt.Errorf("policy file names %w: %s", ErrUnknownKind, kind)
		}
		switch plan.RiskLevel(level) {
		case plan.RiskSafe, plan.RiskNeedsApproval, plan.RiskManual:
			c.kindRisk[k] = plan.RiskLevel(level)
		default:
			return nil, fmt.Errorf("policy file has invalid risk level %q for %s", level, kind)
		}
	}
	for _, pattern := range pf.ManualTargets {
		if err := c.AddManualTarget(pattern); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddManualTarget registers a regex over primitive params; any step whose
// primitive matches is forced to manual, regardless of kind.
func (c *Classifier) AddManualTarget(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid manual target pattern %q: %w", pattern, err)
	}
	c.manualRegex = append(c.manualRegex, re)
	return nil
}

// ClassifyStep returns the risk of a single step: the highest risk among
// its primitives. An unknown kind is fatal to the compile.
func (c *Classifier) ClassifyStep(step plan.Step) (plan.RiskLevel, error) {
	risk := plan.RiskSafe
	for _, prim := range step.Primitives {
		level, ok := c.kindRisk[prim.Kind]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownKind, prim.Kind)
		}
		if c.matchesManualTarget(prim) {
			level = plan.RiskManual
		}
		if rank(level) > rank(risk) {
			risk = level
		}
	}
	return risk, nil
}

// Classify fills in the risk of every step in place.
func (c *Classifier) Classify(steps []plan.Step) error {
	for i := range steps {
		risk, err := c.ClassifyStep(steps[i])
		if err != nil {
			return err
		}
		steps[i].Risk = risk
	}
	return nil
}

func (c *Classifier) matchesManualTarget(prim action.Primitive) bool {
	for _, re := range c.manualRegex {
		for _, v := range prim.Params {
			if s, ok := v.(string); ok && re.MatchString(s) {
				return true
			}
		}
	}
	return false
}

func rank(level plan.RiskLevel) int {
	switch level {
	case plan.RiskManual:
		return 2
	case plan.RiskNeedsApproval:
		return 1
	default:
		return 0
	}
}
