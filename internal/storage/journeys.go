package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ErrActiveJourneyExists is returned when creating a journey for a
// conversation that already has an active one.
var ErrActiveJourneyExists = fmt.Errorf("conversation already has an active journey")

// CreateJourney inserts a journey and its steps in one transaction. The first
// step starts in_progress, the rest pending. A conversation may have at most
// one active journey.
func (s *Store) CreateJourney(ctx context.Context, j Journey, steps []JourneyStep) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning journey transaction: %w", err)
	}
	defer tx.Rollback()

	var active int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journeys WHERE conversation_id = ? AND status = 'active'`, j.ConversationID,
	).Scan(&active); err != nil {
		return fmt.Errorf("checking active journeys: %w", err)
	}
	if active > 0 {
		return ErrActiveJourneyExists
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO journeys (id, conversation_id, template, status, created_at, updated_at)
		VALUES (?, ?, ?, 'active', ?, ?)`,
		j.ID, j.ConversationID, j.Template, now, now,
	); err != nil {
		return fmt.Errorf("inserting journey: %w", err)
	}

	for i, step := range steps {
		status := "pending"
		if i == 0 {
			status = "in_progress"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO journey_steps (id, journey_id, position, title, status)
			VALUES (?, ?, ?, ?, ?)`,
			step.ID, j.ID, i, step.Title, status,
		); err != nil {
			return fmt.Errorf("inserting step %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ActiveJourney returns the conversation's active journey, or ErrNotFound.
func (s *Store) ActiveJourney(ctx context.Context, conversationID string) (Journey, error) {
	var j Journey
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, template, status, created_at, updated_at
		FROM journeys WHERE conversation_id = ? AND status = 'active'`, conversationID,
	).Scan(&j.ID, &j.ConversationID, &j.Template, &j.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Journey{}, ErrNotFound
	}
	if err != nil {
		return Journey{}, err
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Journey{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Journey{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return j, nil
}

// JourneySteps returns a journey's steps in position order.
func (s *Store) JourneySteps(ctx context.Context, journeyID string) ([]JourneyStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, journey_id, position, title, status
		FROM journey_steps WHERE journey_id = ? ORDER BY position ASC`, journeyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []JourneyStep
	for rows.Next() {
		var st JourneyStep
		if err := rows.Scan(&st.ID, &st.JourneyID, &st.Position, &st.Title, &st.Status); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// CurrentStep returns the journey's single in_progress step, or ErrNotFound
// when no step is in progress.
func (s *Store) CurrentStep(ctx context.Context, journeyID string) (JourneyStep, error) {
	var st JourneyStep
	err := s.db.QueryRowContext(ctx, `
		SELECT id, journey_id, position, title, status
		FROM journey_steps WHERE journey_id = ? AND status = 'in_progress'
		ORDER BY position ASC LIMIT 1`, journeyID,
	).Scan(&st.ID, &st.JourneyID, &st.Position, &st.Title, &st.Status)
	if err == sql.ErrNoRows {
		return JourneyStep{}, ErrNotFound
	}
	if err != nil {
		return JourneyStep{}, err
	}
	return st, nil
}

// AdvanceStep marks the current in_progress step done and promotes the next
// pending step, all in one transaction. When no pending step remains the
// journey is marked completed. The guarded UPDATEs keep the
// single-current-step invariant even if callers race.
func (s *Store) AdvanceStep(ctx context.Context, journeyID string) (JourneyStep, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return JourneyStep{}, fmt.Errorf("beginning advance transaction: %w", err)
	}
	defer tx.Rollback()

	var currentID string
	var currentPos int
	err = tx.QueryRowContext(ctx, `
		SELECT id, position FROM journey_steps
		WHERE journey_id = ? AND status = 'in_progress'
		ORDER BY position ASC LIMIT 1`, journeyID,
	).Scan(&currentID, &currentPos)
	if err == sql.ErrNoRows {
		return JourneyStep{}, ErrNotFound
	}
	if err != nil {
		return JourneyStep{}, fmt.Errorf("finding current step: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE journey_steps SET status = 'done' WHERE id = ? AND status = 'in_progress'`, currentID,
	)
	if err != nil {
		return JourneyStep{}, fmt.Errorf("completing current step: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return JourneyStep{}, err
	} else if n != 1 {
		return JourneyStep{}, ErrNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339)

	var next JourneyStep
	err = tx.QueryRowContext(ctx, `
		SELECT id, journey_id, position, title, status FROM journey_steps
		WHERE journey_id = ? AND status = 'pending'
		ORDER BY position ASC LIMIT 1`, journeyID,
	).Scan(&next.ID, &next.JourneyID, &next.Position, &next.Title, &next.Status)
	if err == sql.ErrNoRows {
		// Last step done: the journey completes.
		if _, err := tx.ExecContext(ctx,
			`UPDATE journeys SET status = 'completed', updated_at = ? WHERE id = ?`, now, journeyID,
		); err != nil {
			return JourneyStep{}, fmt.Errorf("completing journey: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return JourneyStep{}, fmt.Errorf("committing advance: %w", err)
		}
		return JourneyStep{}, nil
	}
	if err != nil {
		return JourneyStep{}, fmt.Errorf("finding next step: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE journey_steps SET status = 'in_progress' WHERE id = ? AND status = 'pending'`, next.ID,
	); err != nil {
		return JourneyStep{}, fmt.Errorf("promoting next step: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE journeys SET updated_at = ? WHERE id = ?`, now, journeyID,
	); err != nil {
		return JourneyStep{}, fmt.Errorf("touching journey: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return JourneyStep{}, fmt.Errorf("committing advance: %w", err)
	}
	next.Status = "in_progress"
	return next, nil
}

// SetJourneyStatus updates a journey's status (completed/abandoned).
func (s *Store) SetJourneyStatus(ctx context.Context, journeyID, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE journeys SET status = ?, updated_at = ? WHERE id = ?`, status, now, journeyID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InProgressStepCount returns how many steps of a journey are in_progress.
// The journey invariant requires this to be 0 or 1 at all times.
func (s *Store) InProgressStepCount(ctx context.Context, journeyID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journey_steps WHERE journey_id = ? AND status = 'in_progress'`, journeyID,
	).Scan(&n)
	return n, err
}
