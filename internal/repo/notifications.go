package repo

import (
	"context"
	"database/sql"

	"mutaline/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,user_id,titre,message,demande_id,lu,created_at) VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Titre, n.Message, nullableStringPtr(n.DemandeID), n.Lu, n.CreatedAt)
	return err
}

func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT id,user_id,titre,message,demande_id,lu,created_at FROM notifications WHERE user_id=?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND lu=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var demande sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &n.Titre, &n.Message, &demande, &n.Lu, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.DemandeID = strPtr(demande)
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET lu=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
