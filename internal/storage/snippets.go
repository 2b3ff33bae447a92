package storage

import (
	"context"
	"fmt"
	"time"
)

func (s *Store) SaveSnippet(sn Snippet) error {
	createdAt := sn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	tags := sn.Tags
	if tags == "" {
		tags = "[]"
	}
	_, err := s.db.Exec(`
		INSERT INTO snippets (id, home_id, room_id, title, content, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sn.ID, sn.HomeID, sn.RoomID, sn.Title, sn.Content, tags, createdAt.Format(time.RFC3339),
	)
	return err
}

// SnippetsForScope returns candidate snippets for a home/room scope, newest
// first. An empty home scope matches only unscoped snippets; a scoped query
// also includes unscoped ones so generic knowledge is always available.
func (s *Store) SnippetsForScope(ctx context.Context, homeID, roomID string, limit int) ([]Snippet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, home_id, room_id, title, content, tags, created_at
		FROM snippets
		WHERE (home_id = '' OR home_id = ?)
		  AND (room_id = '' OR room_id = ?)
		ORDER BY created_at DESC LIMIT ?`,
		homeID, roomID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Snippet
	for rows.Next() {
		var sn Snippet
		var createdAt string
		if err := rows.Scan(&sn.ID, &sn.HomeID, &sn.RoomID, &sn.Title, &sn.Content, &sn.Tags, &createdAt); err != nil {
			return nil, err
		}
		if sn.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for snippet %s: %w", sn.ID, err)
		}
		results = append(results, sn)
	}
	return results, rows.Err()
}
