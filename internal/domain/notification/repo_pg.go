package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/db"
)

type notificationRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &notificationRepoPG{pool: pool}
}

const notificationCols = `id, recipient_type, recipient_id, event_type, message, is_read, read_at, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.RecipientType, &n.RecipientID, &n.EventType, &n.Message, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	return &n, err
}

func (r *notificationRepoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO notifications (id, recipient_type, recipient_id, event_type, message)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		n.ID, n.RecipientType, n.RecipientID, n.EventType, n.Message).Scan(&n.CreatedAt)
	if err != nil {
		return apperr.Persistence("create notification", err)
	}
	return nil
}

func (r *notificationRepoPG) ListForRecipient(ctx context.Context, rc Recipient, limit, offset int) ([]*Notification, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE recipient_type = $1 AND recipient_id = $2`,
		rc.Type, rc.ID).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count notifications", err)
	}
	rows, err := q.Query(ctx, `
		SELECT `+notificationCols+` FROM notifications
		WHERE recipient_type = $1 AND recipient_id = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		rc.Type, rc.ID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list notifications", err)
	}
	defer rows.Close()
	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, apperr.Persistence("list notifications", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence("list notifications", err)
	}
	return items, total, nil
}

func (r *notificationRepoPG) UnreadCount(ctx context.Context, rc Recipient) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_type = $1 AND recipient_id = $2 AND NOT is_read`,
		rc.Type, rc.ID).Scan(&n)
	if err != nil {
		return 0, apperr.Persistence("count unread notifications", err)
	}
	return n, nil
}

func (r *notificationRepoPG) MarkRead(ctx context.Context, rc Recipient, id uuid.UUID) (*Notification, error) {
	n, err := scanNotification(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND recipient_type = $2 AND recipient_id = $3
		RETURNING `+notificationCols,
		id, rc.Type, rc.ID))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("notification", id.String())
	}
	if err != nil {
		return nil, apperr.Persistence("mark notification read", err)
	}
	return n, nil
}

func (r *notificationRepoPG) MarkAllRead(ctx context.Context, rc Recipient) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE recipient_type = $1 AND recipient_id = $2 AND NOT is_read`,
		rc.Type, rc.ID)
	if err != nil {
		return 0, apperr.Persistence("mark notifications read", err)
	}
	return int(tag.RowsAffected()), nil
}
