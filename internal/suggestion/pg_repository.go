package suggestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// EnsureSchema creates the suggestions table if it does not exist yet.
// Called once from the server main before serving traffic.
func (r *PgRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS suggestions (
			id                     uuid PRIMARY KEY,
			doctor_code            text NOT NULL,
			patient_id             text NOT NULL,
			patient_name           text NOT NULL DEFAULT '',
			block_id               text NOT NULL,
			block_start            timestamptz NOT NULL,
			block_end              timestamptz NOT NULL,
			total_duration_minutes int NOT NULL,
			window_start           timestamptz NOT NULL,
			window_end             timestamptz NOT NULL,
			anticipation_days      int NOT NULL,
			strategy               text NOT NULL DEFAULT '',
			outcome                text NOT NULL,
			applied_count          int NOT NULL DEFAULT 0,
			created_at             timestamptz NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure suggestions schema: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_suggestions_doctor_created
		ON suggestions (doctor_code, created_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("ensure suggestions index: %w", err)
	}
	return nil
}

func scanSuggestion(row pgx.Row) (*Suggestion, error) {
	var s Suggestion

	err := row.Scan(
		&s.ID,
		&s.DoctorCode,
		&s.PatientID,
		&s.PatientName,
		&s.BlockID,
		&s.BlockStart,
		&s.BlockEnd,
		&s.TotalDurationMinutes,
		&s.WindowStart,
		&s.WindowEnd,
		&s.AnticipationDays,
		&s.Strategy,
		&s.Outcome,
		&s.AppliedCount,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSuggestionNotFound
		}
		return nil, err
	}

	return &s, nil
}

func (r *PgRepository) Insert(ctx context.Context, s Suggestion) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO suggestions (
			id, doctor_code, patient_id, patient_name, block_id,
			block_start, block_end, total_duration_minutes,
			window_start, window_end, anticipation_days,
			strategy, outcome, applied_count, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
	`,
		s.ID, s.DoctorCode, s.PatientID, s.PatientName, s.BlockID,
		s.BlockStart, s.BlockEnd, s.TotalDurationMinutes,
		s.WindowStart, s.WindowEnd, s.AnticipationDays,
		s.Strategy, s.Outcome, s.AppliedCount,
	)
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

func (r *PgRepository) MarkOutcome(ctx context.Context, id uuid.UUID, outcome Outcome, appliedCount int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE suggestions
		SET outcome = $2, applied_count = $3
		WHERE id = $1
	`, id, outcome, appliedCount)
	if err != nil {
		return fmt.Errorf("mark suggestion outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSuggestionNotFound
	}
	return nil
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorCode string, limit, offset int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_code, patient_id, patient_name, block_id,
		       block_start, block_end, total_duration_minutes,
		       window_start, window_end, anticipation_days,
		       strategy, outcome, applied_count, created_at
		FROM suggestions
		WHERE doctor_code = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, doctorCode, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
