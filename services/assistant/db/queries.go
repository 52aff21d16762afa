package db

import (
	"context"
	"database/sql"
	"time"
)

// Store wraps the chat history table. History is capped at read time
// and pruned by age; nothing here is authoritative data.

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type Message struct {
	Role    string
	Content string
}

func (s *Store) AppendMessage(ctx context.Context, userHash, role, content string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		insert into chat_messages (user_hash, role, content, created_at)
		values (?, ?, ?, ?)
	`, userHash, role, content, at.UTC().Format(time.RFC3339))
	return err
}

// RecentMessages returns the newest `limit` messages in chronological
// order.
func (s *Store) RecentMessages(ctx context.Context, userHash string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role, content from (
			select id, role, content from chat_messages
			where user_hash = ?
			order by id desc limit ?
		) order by id asc
	`, userHash, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *Store) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from chat_messages where created_at < ?
	`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
