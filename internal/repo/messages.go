package repo

import (
	"context"
	"database/sql"

	"github.com/karras2025-collab/it-freelance-exchange/internal/domain"
)

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO messages(id,deal_id,sender_id,body,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.DealID, m.SenderID, m.Body, m.CreatedAt)
	return err
}

// LastMessageTimestampTx returns the newest message timestamp on a deal,
// or "" when the channel is empty.
func (r Repo) LastMessageTimestampTx(ctx context.Context, tx *sql.Tx, dealID string) (string, error) {
	var ts string
	err := tx.QueryRowContext(ctx, `SELECT created_at FROM messages WHERE deal_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, dealID).Scan(&ts)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ts, nil
}

// ListMessages returns the full channel for a deal, oldest first.
func (r Repo) ListMessages(ctx context.Context, dealID string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,deal_id,sender_id,body,created_at FROM messages WHERE deal_id=? ORDER BY created_at ASC, id ASC`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.DealID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
