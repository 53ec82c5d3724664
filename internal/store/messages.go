package store

import (
	"github.com/pkg/errors"

	"github.com/privchat/privchat-server/internal/models"
)

// AppendMessage inserts msg with the next sequence number for its
// conversation and returns the assigned value. The read and insert run in
// one transaction; the message log additionally serializes appends per
// conversation so two concurrent callers can never observe the same tail.
func (s *Store) AppendMessage(msg models.Message) (int64, error) {
	var seq int64
	err := withRetry(func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return errors.Wrap(err, "begin append")
		}
		defer tx.Rollback()

		if err := tx.QueryRow(
			"SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?",
			msg.ConversationID,
		).Scan(&seq); err != nil {
			return errors.Wrap(err, "next sequence")
		}

		if _, err := tx.Exec(
			`INSERT INTO messages (id, conversation_id, seq, sender_id, text, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, seq, msg.SenderID, msg.Text, formatTime(msg.CreatedAt),
		); err != nil {
			return errors.Wrap(err, "insert message")
		}
		return errors.Wrap(tx.Commit(), "commit append")
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// ListMessagesSince returns up to limit messages with seq > afterSeq, in
// ascending sequence order. afterSeq = 0 replays from the beginning.
func (s *Store) ListMessagesSince(conversationID string, afterSeq int64, limit int) ([]models.Message, error) {
	var out []models.Message
	err := withRetry(func() error {
		rows, err := s.conn.Query(
			`SELECT id, conversation_id, seq, sender_id, text, created_at
			 FROM messages
			 WHERE conversation_id = ? AND seq > ?
			 ORDER BY seq ASC
			 LIMIT ?`,
			conversationID, afterSeq, limit,
		)
		if err != nil {
			return errors.Wrap(err, "list messages")
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				msg       models.Message
				createdAt string
			)
			if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Seq, &msg.SenderID, &msg.Text, &createdAt); err != nil {
				return errors.Wrap(err, "scan message")
			}
			msg.CreatedAt = parseTime(createdAt)
			out = append(out, msg)
		}
		return errors.Wrap(rows.Err(), "list messages")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
