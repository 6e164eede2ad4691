package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"tixbot/internal/model"
)

// SaveRun 落库一次购票流程及其全部验证码尝试。
func (s *Store) SaveRun(ctx context.Context, rec model.RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.EventURL == "" {
		return errors.New("run record requires eventUrl")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, event_url, target_show, target_area, ticket_count, chosen_area, final_state, error_message, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chosen_area = excluded.chosen_area,
			final_state = excluded.final_state,
			error_message = excluded.error_message,
			ended_at = excluded.ended_at
	`, rec.ID, rec.EventURL, rec.TargetShow, rec.TargetArea, rec.TicketCount, rec.ChosenArea,
		string(rec.FinalState), rec.ErrorMessage, rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli())
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM challenge_attempts WHERE run_id = ?`, rec.ID); err != nil {
		return err
	}
	for _, a := range rec.Attempts {
		lengthOK := 0
		if a.LengthOK {
			lengthOK = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO challenge_attempts (id, run_id, idx, text, length_ok, confidence, outcome, at_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), rec.ID, a.Index, a.Text, lengthOK, a.Confidence, string(a.Outcome), a.AtMs)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRun 取一次购票记录（含验证码尝试，按序）。
func (s *Store) GetRun(ctx context.Context, id string) (model.RunRecord, error) {
	var rec model.RunRecord
	var state string
	var startedMs, endedMs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_url, target_show, target_area, ticket_count, chosen_area, final_state, error_message, started_at, ended_at
		FROM runs WHERE id = ?
	`, id).Scan(&rec.ID, &rec.EventURL, &rec.TargetShow, &rec.TargetArea, &rec.TicketCount,
		&rec.ChosenArea, &state, &rec.ErrorMessage, &startedMs, &endedMs)
	if err != nil {
		return model.RunRecord{}, err
	}
	rec.FinalState = model.BotState(state)
	rec.StartedAt = time.UnixMilli(startedMs)
	rec.EndedAt = time.UnixMilli(endedMs)

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, text, length_ok, confidence, outcome, at_ms
		FROM challenge_attempts WHERE run_id = ? ORDER BY idx ASC
	`, id)
	if err != nil {
		return model.RunRecord{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.ChallengeAttempt
		var lengthOK int
		var outcome string
		if err := rows.Scan(&a.Index, &a.Text, &lengthOK, &a.Confidence, &outcome, &a.AtMs); err != nil {
			return model.RunRecord{}, err
		}
		a.LengthOK = lengthOK != 0
		a.Outcome = model.AttemptOutcome(outcome)
		rec.Attempts = append(rec.Attempts, a)
	}
	return rec, rows.Err()
}

// ListRuns 最近的购票记录，新的在前，不带尝试明细。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_url, target_show, target_area, ticket_count, chosen_area, final_state, error_message, started_at, ended_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		var rec model.RunRecord
		var state string
		var startedMs, endedMs int64
		if err := rows.Scan(&rec.ID, &rec.EventURL, &rec.TargetShow, &rec.TargetArea, &rec.TicketCount,
			&rec.ChosenArea, &state, &rec.ErrorMessage, &startedMs, &endedMs); err != nil {
			return nil, err
		}
		rec.FinalState = model.BotState(state)
		rec.StartedAt = time.UnixMilli(startedMs)
		rec.EndedAt = time.UnixMilli(endedMs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

var ErrNotFound = sql.ErrNoRows
