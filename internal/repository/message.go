package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quickchat/internal/logger"
	"github.com/quickchat/internal/model"
)

const msgCols = `id, sender_id, receiver_id, text, image, seen, created_at`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.Seen, &m.CreatedAt)
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (`+msgCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.SenderID, m.ReceiverID, m.Text, m.Image, m.Seen, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+msgCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// GetConversation возвращает переписку двух пользователей в порядке вставки.
func (r *MessageRepository) GetConversation(ctx context.Context, userID, counterpartID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.GetConversation", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+msgCols+` FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at, seq`,
		userID, counterpartID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetConversation query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, 64)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.GetConversation scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.GetConversation rows: %w", err)
	}
	return messages, nil
}

// MarkSeen выставляет seen = true. changed = false, если сообщение уже было прочитано.
func (r *MessageRepository) MarkSeen(ctx context.Context, id string) (changed bool, err error) {
	defer logger.DeferLogDuration("msg.MarkSeen", time.Now())()
	tag, err := r.pool.Exec(ctx, `UPDATE messages SET seen = true WHERE id = $1 AND seen = false`, id)
	if err != nil {
		return false, fmt.Errorf("msgRepo.MarkSeen: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountUnseen — число непрочитанных сообщений от senderID к receiverID.
func (r *MessageRepository) CountUnseen(ctx context.Context, receiverID, senderID string) (int, error) {
	defer logger.DeferLogDuration("msg.CountUnseen", time.Now())()
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND sender_id = $2 AND seen = false`,
		receiverID, senderID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.CountUnseen: %w", err)
	}
	return n, nil
}

// UnseenBySender группирует непрочитанные сообщения receiverID по отправителю.
func (r *MessageRepository) UnseenBySender(ctx context.Context, receiverID string) (map[string]int, error) {
	defer logger.DeferLogDuration("msg.UnseenBySender", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT sender_id, COUNT(*) FROM messages
		 WHERE receiver_id = $1 AND seen = false
		 GROUP BY sender_id`,
		receiverID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.UnseenBySender query: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var senderID string
		var n int
		if err := rows.Scan(&senderID, &n); err != nil {
			return nil, fmt.Errorf("msgRepo.UnseenBySender scan: %w", err)
		}
		counts[senderID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.UnseenBySender rows: %w", err)
	}
	return counts, nil
}
