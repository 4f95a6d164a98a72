package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeSegment   EventType = "segment"
	EventTypeCompile   EventType = "compile"
	EventTypeClassify  EventType = "classify"
	EventTypeApproval  EventType = "approval"
	EventTypeExecute   EventType = "execute"
	EventTypeVerify    EventType = "verify"
	EventTypeHeal      EventType = "heal"
	EventTypePlan      EventType = "plan"
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeLLM       EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	PlanID    string    `json:"plan_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogSegment(request string, phrases []string) {
	l.Log(Event{
		Type: EventTypeSegment,
		Data: map[string]any{"request": request, "phrases": phrases},
	})
}

func (l *Logger) LogCompile(planID string, stepCount, primitiveCount int) {
	l.Log(Event{
		Type:   EventTypeCompile,
		PlanID: planID,
		Data: map[string]any{
			"steps":      stepCount,
			"primitives": primitiveCount,
		},
	})
}

func (l *Logger) LogClassify(planID string, stepIndex int, risk string) {
	l.Log(Event{
		Type:   EventTypeClassify,
		PlanID: planID,
		Data:   map[string]any{"step": stepIndex, "risk": risk},
	})
}

func (l *Logger) LogApproval(planID string, decision string) {
	l.Log(Event{
		Type:   EventTypeApproval,
		PlanID: planID,
		Data:   map[string]string{"decision": decision},
	})
}

func (l *Logger) LogExecute(planID string, stepIndex, primitiveIndex int, kind string, exitCode int, durationMs int64) {
	l.Log(Event{
		Type:   EventTypeExecute,
		PlanID: planID,
		Data: map[string]any{
			"step":        stepIndex,
			"primitive":   primitiveIndex,
			"kind":        kind,
			"exit_code":   exitCode,
			"duration_ms": durationMs,
		},
	})
}

func (l *Logger) LogVerify(planID string, stepIndex int, passed bool, message string) {
	l.Log(Event{
		Type:   EventTypeVerify,
		PlanID: planID,
		Data: map[string]any{
			"step":    stepIndex,
			"passed":  passed,
			"message": message,
		},
	})
}

func (l *Logger) LogHeal(planID string, attempt, maxAttempts int, lastError string) {
	l.Log(Event{
		Type:   EventTypeHeal,
		PlanID: planID,
		Data: map[string]any{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"last_error":   lastError,
		},
	})
}

func (l *Logger) LogPlanStatus(planID string, resolution, status string, attempt int) {
	l.Log(Event{
		Type:   EventTypePlan,
		PlanID: planID,
		Data: map[string]any{
			"resolution": resolution,
			"status":     status,
			"attempt":    attempt,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(planID string, prompt any, response string) {
	l.Log(Event{
		Type:   EventTypeLLM,
		PlanID: planID,
		Data: map[string]any{
			"prompt":   prompt,
			"response": response,
		},
	})
}
