package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/operator-ai/deskpilot/internal/action"
	"github.com/operator-ai/deskpilot/internal/compile"
	"github.com/operator-ai/deskpilot/internal/engine"
	"github.com/operator-ai/deskpilot/internal/observability"
	"github.com/operator-ai/deskpilot/internal/plan"
)

// DefaultMaxAttempts is the healing retry budget per user request.
const DefaultMaxAttempts = 3

// RetryContext tracks one healing cycle. It lives from the first failure
// of a request until the plan succeeds or the budget runs out.
type RetryContext struct {
	Attempt         int
	MaxAttempts     int
	LastError       string
	OriginalRequest string
}

// HealingExhaustedError is the terminal failure after the retry budget is
// spent. It carries the last primitive attempted, its raw stderr, and the
// retries consumed, so the operator never sees a bare "unknown error".
type HealingExhaustedError struct {
	Attempts      int
	LastPrimitive string
	Stderr        string
}

func (e *HealingExhaustedError) Error() string {
	return fmt.Sprintf("healing exhausted after %d attempts; last primitive %q failed: %s",
		e.Attempts, e.LastPrimitive, e.Stderr)
}

// fallbackHealerPrompt is used when no prompt directory is configured. It
// enumerates every primitive the compiler understands so the model cannot
// invent new ones.
func fallbackHealerPrompt() string {
	var sb strings.Builder
	sb.WriteString("You repair failed desktop automation steps. Reply with corrected ")
	sb.WriteString("instructions for ONLY the failed step, one short imperative phrase ")
	sb.WriteString("per line, no numbering and no commentary. Each phrase must compile ")
	sb.WriteString("to one of these primitives:\n")
	for _, k := range action.Kinds {
		sb.WriteString("- ")
		sb.WriteString(string(k))
		sb.WriteByte('\n')
	}
	sb.WriteString("\nPhrase forms: \"open <app>\", \"go to <domain>\", ")
	sb.WriteString("\"click on <text>\", \"click on (x, y)\", \"type <text>\", ")
	sb.WriteString("\"press <key>\", \"find <text> on screen\", \"wait <n> seconds\", ")
	sb.WriteString("\"scroll up|down [n]\", \"search for <text>\", \"screenshot\".")
	return sb.String()
}

// Healer regenerates a failed step's primitives through the language
// model. Model output is never executed directly: it re-enters the
// compiler and classifier like any user request.
type Healer struct {
	Model   llms.Model
	Prompts *PromptManager
	Log     *observability.Logger

	// AttemptTimeout bounds one model call; the operator can also cancel
	// through the context.
	AttemptTimeout time.Duration
}

// NewHealer returns a healer over the given model.
func NewHealer(model llms.Model, prompts *PromptManager, log *observability.Logger) *Healer {
	return &Healer{
		Model:          model,
		Prompts:        prompts,
		Log:            log,
		AttemptTimeout: 2 * time.Minute,
	}
}

// HealStep asks the model for a corrected fragment replacing the failed
// step and compiles it into fresh steps. The caller re-classifies and
// re-gates them.
func (h *Healer) HealStep(ctx context.Context, rc RetryContext, failed plan.Step, failure *engine.StepFailure) ([]plan.Step, error) {
	systemPrompt := ""
	if h.Prompts != nil {
		systemPrompt, _ = h.Prompts.GetHealerPrompt()
	}
	if systemPrompt == "" {
		systemPrompt = fallbackHealerPrompt()
	}

	userPrompt := fmt.Sprintf(
		"Original request: %s\nFailed step: %s\nFailed primitive: %s\nError output:\n%s\nAttempt %d of %d.",
		rc.OriginalRequest, failed.SourcePhrase, failure.Primitive.Description,
		failure.Result.Stderr, rc.Attempt, rc.MaxAttempts)

	callCtx, cancel := context.WithTimeout(ctx, h.AttemptTimeout)
	defer cancel()

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}

	resp, err := h.Model.GenerateContent(callCtx, messages)
	if err != nil {
		return nil, fmt.Errorf("healing model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("healing model returned no choices")
	}
	content := resp.Choices[0].Content
	if h.Log != nil {
		h.Log.LogLLM("", userPrompt, content)
	}

	steps := h.compileFragment(content)
	if len(steps) == 0 {
		return nil, fmt.Errorf("healing model produced no usable instructions")
	}
	return steps, nil
}

// compileFragment turns model output lines into compiled steps, stripping
// bullets, numbering, and code fences.
func (h *Healer) compileFragment(content string) []plan.Step {
	var steps []plan.Step
	index := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		line = strings.Trim(line, "`")
		if line == "" {
			continue
		}
		prims, rule := compile.CompileStep(line)
		if len(prims) == 0 {
			continue
		}
		steps = append(steps, plan.Step{
			Index:        index,
			SourcePhrase: line,
			Primitives:   prims,
			Intent:       fmt.Sprintf("%s (%s, healed)", line, rule),
		})
		index++
	}
	return steps
}
