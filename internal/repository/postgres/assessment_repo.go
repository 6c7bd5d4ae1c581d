package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
)

const assessmentColumns = 9

const createAssessmentsTable = `
CREATE TABLE IF NOT EXISTS risk_assessments (
	id          UUID PRIMARY KEY,
	trace_id    TEXT,
	agent_id    TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	risk_score  DOUBLE PRECISION NOT NULL,
	risk_level  TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	factors     JSONB NOT NULL,
	assessed_at TIMESTAMPTZ NOT NULL
)`

// AssessmentRepo — приемник экспорта: пишет записи оценок в таблицу risk_assessments.
// Только запись, обратно ничего не читается.
type AssessmentRepo struct {
	db *sql.DB
}

func NewAssessmentRepo(db *sql.DB) *AssessmentRepo {
	return &AssessmentRepo{db: db}
}

func (r *AssessmentRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAssessmentsTable); err != nil {
		return fmt.Errorf("postgres: create risk_assessments: %w", err)
	}
	return nil
}

func (r *AssessmentRepo) WriteBatch(ctx context.Context, records []domain.AssessmentRecord) error {
	if len(records) == 0 {
		return nil
	}

	query, vals, err := buildInsert(records)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: insert %d assessments: %w", len(records), err)
	}
	return nil
}

// buildInsert динамически строит запрос для пакетной вставки.
// Повторная выгрузка того же id игнорируется.
func buildInsert(records []domain.AssessmentRecord) (string, []interface{}, error) {
	var sb strings.Builder
	vals := make([]interface{}, 0, len(records)*assessmentColumns)

	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		p := i * assessmentColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		factors, err := json.Marshal(rec.Factors)
		if err != nil {
			return "", nil, fmt.Errorf("postgres: marshal factors of %s: %w", rec.ID, err)
		}

		vals = append(vals,
			rec.ID, rec.TraceID, rec.AgentID, rec.EntityID,
			rec.RiskScore, rec.RiskLevel, rec.Confidence, factors, rec.Timestamp,
		)
	}

	query := "INSERT INTO risk_assessments " +
		"(id, trace_id, agent_id, entity_id, risk_score, risk_level, confidence, factors, assessed_at) VALUES " +
		sb.String() + " ON CONFLICT (id) DO NOTHING"

	return query, vals, nil
}
