package store

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/privchat/privchat-server/internal/models"
)

// CreateConversation inserts a conversation and its member rows in one
// transaction. pairKey must be the canonical sorted member pair for direct
// conversations and empty for groups; a unique index on it backs the
// idempotent direct-chat contract. Returns ErrDuplicate if the pair already
// has a conversation.
func (s *Store) CreateConversation(conv models.Conversation, pairKey string) error {
	return withRetry(func() error {
		tx, err := s.conn.Begin()
		if err != nil {
			return errors.Wrap(err, "begin create conversation")
		}
		defer tx.Rollback()

		var key any
		if pairKey != "" {
			key = pairKey
		}
		_, err = tx.Exec(
			`INSERT INTO conversations (id, title, direct, pair_key, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			conv.ID, conv.Title, boolToInt(conv.Direct), key, formatTime(conv.CreatedAt),
		)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return errors.Wrap(err, "insert conversation")
		}

		for _, member := range conv.MemberIDs {
			if _, err := tx.Exec(
				"INSERT INTO members (conversation_id, identity_id) VALUES (?, ?)",
				conv.ID, member,
			); err != nil {
				return errors.Wrap(err, "insert member")
			}
		}
		return errors.Wrap(tx.Commit(), "commit create conversation")
	})
}

// GetConversation loads one conversation with its member set.
func (s *Store) GetConversation(id string) (models.Conversation, error) {
	var conv models.Conversation
	err := withRetry(func() error {
		row := s.conn.QueryRow(
			`SELECT id, title, direct, created_at, last_seq, last_sender, last_text, last_at
			 FROM conversations WHERE id = ?`, id,
		)
		loaded, err := scanConversation(row)
		if err != nil {
			return err
		}
		members, err := s.memberIDs(id)
		if err != nil {
			return err
		}
		loaded.MemberIDs = members
		conv = loaded
		return nil
	})
	if err == sql.ErrNoRows {
		return models.Conversation{}, ErrNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetConversationByPairKey resolves a direct conversation by its canonical
// member pair key.
func (s *Store) GetConversationByPairKey(pairKey string) (models.Conversation, error) {
	var id string
	err := withRetry(func() error {
		return s.conn.QueryRow(
			"SELECT id FROM conversations WHERE pair_key = ?", pairKey,
		).Scan(&id)
	})
	if err == sql.ErrNoRows {
		return models.Conversation{}, ErrNotFound
	}
	if err != nil {
		return models.Conversation{}, errors.Wrap(err, "select conversation by pair")
	}
	return s.GetConversation(id)
}

// IsMember reports whether the identity belongs to the conversation.
func (s *Store) IsMember(conversationID, identityID string) (bool, error) {
	var count int
	err := withRetry(func() error {
		return s.conn.QueryRow(
			"SELECT COUNT(*) FROM members WHERE conversation_id = ? AND identity_id = ?",
			conversationID, identityID,
		).Scan(&count)
	})
	if err != nil {
		return false, errors.Wrap(err, "select membership")
	}
	return count > 0, nil
}

// ListConversationsForMember returns every conversation the identity belongs
// to, most recently active first. Conversations with no messages yet sort by
// their creation time.
func (s *Store) ListConversationsForMember(identityID string) ([]models.Conversation, error) {
	var out []models.Conversation
	err := withRetry(func() error {
		rows, err := s.conn.Query(
			`SELECT c.id, c.title, c.direct, c.created_at, c.last_seq, c.last_sender, c.last_text, c.last_at
			 FROM conversations c
			 JOIN members m ON m.conversation_id = c.id
			 WHERE m.identity_id = ?
			 ORDER BY CASE WHEN c.last_at = '' THEN c.created_at ELSE c.last_at END DESC`,
			identityID,
		)
		if err != nil {
			return errors.Wrap(err, "list conversations")
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			conv, err := scanConversation(rows)
			if err != nil {
				return err
			}
			out = append(out, conv)
		}
		if err := rows.Err(); err != nil {
			return errors.Wrap(err, "list conversations")
		}

		for i := range out {
			members, err := s.memberIDs(out[i].ID)
			if err != nil {
				return err
			}
			out[i].MemberIDs = members
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateLastMessage records the summary of the latest append. The last_seq
// guard makes the write last-write-wins by sequence number, so concurrent
// appends may complete their summary writes in any order.
func (s *Store) UpdateLastMessage(conversationID string, summary models.MessageSummary) error {
	return withRetry(func() error {
		_, err := s.conn.Exec(
			`UPDATE conversations
			 SET last_seq = ?, last_sender = ?, last_text = ?, last_at = ?
			 WHERE id = ? AND last_seq < ?`,
			summary.Seq, summary.SenderID, summary.Text, formatTime(summary.CreatedAt),
			conversationID, summary.Seq,
		)
		return errors.Wrap(err, "update last message")
	})
}

func (s *Store) memberIDs(conversationID string) ([]string, error) {
	rows, err := s.conn.Query(
		"SELECT identity_id FROM members WHERE conversation_id = ? ORDER BY identity_id",
		conversationID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "select members")
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan member")
		}
		members = append(members, id)
	}
	return members, errors.Wrap(rows.Err(), "select members")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (models.Conversation, error) {
	var (
		conv       models.Conversation
		direct     int
		createdAt  string
		lastSeq    int64
		lastSender string
		lastText   string
		lastAt     string
	)
	err := row.Scan(&conv.ID, &conv.Title, &direct, &createdAt, &lastSeq, &lastSender, &lastText, &lastAt)
	if err != nil {
		return models.Conversation{}, err
	}
	conv.Direct = direct != 0
	conv.CreatedAt = parseTime(createdAt)
	if lastSeq > 0 {
		conv.LastMessage = &models.MessageSummary{
			Seq:       lastSeq,
			SenderID:  lastSender,
			Text:      lastText,
			CreatedAt: parseTime(lastAt),
		}
	}
	return conv, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
