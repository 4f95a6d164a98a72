package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/operator-ai/deskpilot/internal/plan"
)

// AuditStore persists plans, their run logs, and timeline records for
// inspection. The core does not require persistence; the store exists so
// a failed healing history survives the session.
type AuditStore struct {
	DB *sql.DB
}

func NewAuditStore(dbPath string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS plans (
			plan_id TEXT PRIMARY KEY,
			request TEXT,
			attempt INTEGER,
			resolution TEXT,
			status TEXT,
			document TEXT,
			created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plan_id TEXT,
			step_index INTEGER,
			primitive_index INTEGER,
			exit_code INTEGER,
			stdout TEXT,
			stderr TEXT,
			duration_ms INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS timeline (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plan_id TEXT,
			step_index INTEGER,
			observe TEXT,
			intent TEXT,
			actions TEXT,
			verify_passed INTEGER,
			verify_message TEXT
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return nil, err
		}
	}

	return &AuditStore{DB: db}, nil
}

// SavePlan upserts the plan document and replaces its run log and
// timeline. Called after every status transition, so the stored document
// always reflects the latest state.
func (s *AuditStore) SavePlan(p *plan.Plan) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize plan %s: %w", p.ID, err)
	}

	_, err = s.DB.Exec(`INSERT INTO plans (plan_id, request, attempt, resolution, status, document, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			attempt = excluded.attempt,
			resolution = excluded.resolution,
			status = excluded.status,
			document = excluded.document`,
		p.ID, p.Request, p.Attempt, string(p.Resolution), string(p.Status), string(doc), p.CreatedAt)
	if err != nil {
		return err
	}

	if _, err := s.DB.Exec(`DELETE FROM results WHERE plan_id = ?`, p.ID); err != nil {
		return err
	}
	for _, r := range p.RunLog {
		_, err := s.DB.Exec(`INSERT INTO results (plan_id, step_index, primitive_index, exit_code, stdout, stderr, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, r.StepIndex, r.PrimitiveIndex, r.ExitCode, r.Stdout, r.Stderr, r.DurationMs)
		if err != nil {
			return err
		}
	}

	if _, err := s.DB.Exec(`DELETE FROM timeline WHERE plan_id = ?`, p.ID); err != nil {
		return err
	}
	for _, rec := range p.Timeline {
		actions, _ := json.Marshal(rec.Actions)
		passed, message := 0, ""
		if rec.Verify != nil {
			if rec.Verify.Passed {
				passed = 1
			}
			message = rec.Verify.Message
		}
		_, err := s.DB.Exec(`INSERT INTO timeline (plan_id, step_index, observe, intent, actions, verify_passed, verify_message)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, rec.StepIndex, rec.Observe, rec.Intent, string(actions), passed, message)
		if err != nil {
			return err
		}
	}
	return nil
}

// ExportPlan returns the stored plan as its flat JSON document, keyed by
// planId for audit.
func (s *AuditStore) ExportPlan(planID string) ([]byte, error) {
	var doc string
	err := s.DB.QueryRow(`SELECT document FROM plans WHERE plan_id = ?`, planID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no stored plan %s", planID)
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

// AttemptHistory returns every plan compiled for a request, oldest first,
// so an exhausted healing cycle can be inspected end to end.
func (s *AuditStore) AttemptHistory(request string) ([]*plan.Plan, error) {
	rows, err := s.DB.Query(`SELECT document FROM plans WHERE request = ? ORDER BY attempt ASC, created_at ASC`, request)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*plan.Plan
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p plan.Plan
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, err
		}
		plans = append(plans, &p)
	}
	return plans, rows.Err()
}

// Timeline returns the stored timeline records for a plan in step order.
func (s *AuditStore) Timeline(planID string) ([]plan.TimelineRecord, error) {
	rows, err := s.DB.Query(`SELECT step_index, observe, intent, actions, verify_passed, verify_message
		FROM timeline WHERE plan_id = ? ORDER BY step_index ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []plan.TimelineRecord
	for rows.Next() {
		var rec plan.TimelineRecord
		var actions string
		var passed int
		var message string
		if err := rows.Scan(&rec.StepIndex, &rec.Observe, &rec.Intent, &actions, &passed, &message); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(actions), &rec.Actions)
		if message != "" || passed == 1 {
			rec.Verify = &plan.VerifyResult{Passed: passed == 1, Message: message}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *AuditStore) Close() error {
	return s.DB.Close()
}
