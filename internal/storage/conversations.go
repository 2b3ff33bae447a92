package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) CreateConversation(c Conversation) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if !c.CreatedAt.IsZero() {
		createdAt = c.CreatedAt.UTC().Format(time.RFC3339)
	}
	status := c.Status
	if status == "" {
		status = "active"
	}
	_, err := s.db.Exec(`
		INSERT INTO conversations (id, persona, scenario, home_id, room_id, mode, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Persona), string(c.Scenario), c.HomeID, c.RoomID, string(c.Mode), status, createdAt, now,
	)
	return err
}

func (s *Store) GetConversation(id string) (Conversation, error) {
	var c Conversation
	var persona, scenario, mode, createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, persona, scenario, home_id, room_id, mode, status, created_at, updated_at
		FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &persona, &scenario, &c.HomeID, &c.RoomID, &mode, &c.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	c.Persona = Persona(persona)
	c.Scenario = Scenario(scenario)
	c.Mode = Mode(mode)
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Conversation{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, nil
}

func (s *Store) ListConversations(limit, offset int) ([]Conversation, error) {
	rows, err := s.db.Query(`
		SELECT id, persona, scenario, home_id, room_id, mode, status, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		var c Conversation
		var persona, scenario, mode, createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &persona, &scenario, &c.HomeID, &c.RoomID, &mode, &c.Status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.Persona = Persona(persona)
		c.Scenario = Scenario(scenario)
		c.Mode = Mode(mode)
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// ArchiveConversation marks a conversation archived. Conversations are never
// deleted.
func (s *Store) ArchiveConversation(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE conversations SET status = 'archived', updated_at = ? WHERE id = ?`, now, id)
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

// AppendTurn persists one complete turn in a single transaction: the user
// message, the assistant message, and any attachments. Sequence numbers are
// assigned here from MAX(seq)+1 so they are gapless per conversation. If any
// insert fails the whole turn is rolled back.
func (s *Store) AppendTurn(ctx context.Context, rec TurnRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning turn transaction: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM messages WHERE conversation_id = ?`, rec.ConversationID,
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("reading max seq: %w", err)
	}

	now := time.Now().UTC()
	user := rec.UserMessage
	user.ConversationID = rec.ConversationID
	user.Seq = maxSeq.Int64 + 1
	assistant := rec.AssistantMessage
	assistant.ConversationID = rec.ConversationID
	assistant.Seq = maxSeq.Int64 + 2

	for _, m := range []Message{user, assistant} {
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		metadata := m.Metadata
		if metadata == "" {
			metadata = "{}"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, seq, role, content, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ConversationID, m.Seq, m.Role, m.Content, metadata, createdAt.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting %s message: %w", m.Role, err)
		}
	}

	linkedStep := false
	for _, a := range rec.Attachments {
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		analysis := a.Analysis
		if analysis == "" {
			analysis = "{}"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (id, message_id, journey_step_id, kind, locator, content_type, provenance, analysis, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.MessageID, a.JourneyStepID, a.Kind, a.Locator, a.ContentType, a.Provenance, analysis, createdAt.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting attachment %s: %w", a.ID, err)
		}
		if a.JourneyStepID != "" {
			linkedStep = true
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now.Format(time.RFC3339), rec.ConversationID,
	); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}

	if linkedStep {
		if _, err := tx.ExecContext(ctx, `
			UPDATE journeys SET updated_at = ?
			WHERE conversation_id = ? AND status = 'active'`,
			now.Format(time.RFC3339), rec.ConversationID,
		); err != nil {
			return fmt.Errorf("touching journey: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent messages in chronological order,
// bounded by a character budget rather than a fixed count. The oldest
// messages that would exceed the budget are dropped first. A single
// over-budget message is still returned so the result is never empty when
// history exists.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, charBudget int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, content, metadata, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY seq DESC`, conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collected []Message
	used := 0
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		if len(collected) > 0 && used+len(m.Content) > charBudget {
			break
		}
		used += len(m.Content)
		collected = append(collected, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

// RecentAssistantMessages returns the last n assistant messages, newest
// first. Used for the suggestion anti-repetition window and for artifact
// scanning during action resolution.
func (s *Store) RecentAssistantMessages(ctx context.Context, conversationID string, n int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, content, metadata, created_at
		FROM messages WHERE conversation_id = ? AND role = 'assistant'
		ORDER BY seq DESC LIMIT ?`, conversationID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// MessageCount returns the number of messages in a conversation.
func (s *Store) MessageCount(ctx context.Context, conversationID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&n)
	return n, err
}

// Messages returns all messages of a conversation in sequence order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, content, metadata, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY seq ASC`, conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// AttachmentsForMessage returns the attachments linked to a message.
func (s *Store) AttachmentsForMessage(ctx context.Context, messageID string) ([]Attachment, error) {
	return s.queryAttachments(ctx, `message_id = ?`, messageID)
}

// AttachmentsForStep returns the attachments linked to a journey step.
func (s *Store) AttachmentsForStep(ctx context.Context, stepID string) ([]Attachment, error) {
	return s.queryAttachments(ctx, `journey_step_id = ?`, stepID)
}

func (s *Store) queryAttachments(ctx context.Context, where string, arg any) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, journey_step_id, kind, locator, content_type, provenance, analysis, created_at
		FROM attachments WHERE `+where+` ORDER BY created_at ASC`, arg,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Attachment
	for rows.Next() {
		var a Attachment
		var createdAt string
		if err := rows.Scan(&a.ID, &a.MessageID, &a.JourneyStepID, &a.Kind, &a.Locator, &a.ContentType, &a.Provenance, &a.Analysis, &createdAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for attachment %s: %w", a.ID, err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var createdAt string
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &m.Content, &m.Metadata, &createdAt); err != nil {
		return Message{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Message{}, fmt.Errorf("parsing created_at for message %s: %w", m.ID, err)
	}
	m.CreatedAt = t
	return m, nil
}
