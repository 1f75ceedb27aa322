package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loja-api/internal/domain/notification"
)

const (
	notificationColumns = `id, user_id, title, message, kind, read, created_at`

	getNotificationSQL = `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND user_id = $2`
	markReadSQL        = `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`
	markAllReadSQL     = `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`
	deleteNotifSQL     = `DELETE FROM notifications WHERE id = $1 AND user_id = $2`

	listNotificationsSQL = `SELECT ` + notificationColumns + ` FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT read)
		ORDER BY created_at DESC, id DESC`

	notificationStatsSQL = `SELECT COUNT(*), COUNT(*) FILTER (WHERE read)
		FROM notifications WHERE user_id = $1`

	findNotificationSQL = `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	removeNotifSQL      = `DELETE FROM notifications WHERE id = $1`
	updateNotifSQL      = `UPDATE notifications SET title = $2, message = $3, kind = $4, read = $5 WHERE id = $1`

	listAllNotificationsSQL = `SELECT ` + notificationColumns + ` FROM notifications
		WHERE ($1::bigint = 0 OR user_id = $1) AND ($2::boolean IS NULL OR read = $2)
		ORDER BY created_at DESC, id DESC`

	createNotificationSQL = `INSERT INTO notifications (user_id, title, message, kind, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
)

var _ notification.Repository = (*NotificationRepository)(nil)

// NotificationRepository implements notification.Repository backed by
// PostgreSQL.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a NotificationRepository that uses the
// given pool.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	err := r.pool.QueryRow(ctx, createNotificationSQL,
		n.UserID, n.Title, n.Message, string(n.Kind), n.Read, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return errors.Wrap(err, "insert notification")
	}
	return nil
}

func (r *NotificationRepository) Get(ctx context.Context, userID, id int64) (*notification.Notification, error) {
	rows, err := r.pool.Query(ctx, getNotificationSQL, id, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "get notification %d", id)
	}

	n, err := pgx.CollectExactlyOneRow(rows, scanNotification)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get notification %d", id)
	}
	return &n, nil
}

func (r *NotificationRepository) List(ctx context.Context, userID int64, unreadOnly bool) ([]notification.Notification, error) {
	rows, err := r.pool.Query(ctx, listNotificationsSQL, userID, unreadOnly)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}

	list, err := pgx.CollectRows(rows, scanNotification)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	return list, nil
}

func (r *NotificationRepository) Stats(ctx context.Context, userID int64) (notification.Stats, error) {
	var st notification.Stats
	if err := r.pool.QueryRow(ctx, notificationStatsSQL, userID).Scan(&st.Total, &st.Read); err != nil {
		return notification.Stats{}, errors.Wrap(err, "notification stats")
	}
	st.Unread = st.Total - st.Read
	return st, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	return r.execOwned(ctx, markReadSQL, id, userID)
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, markAllReadSQL, userID)
	if err != nil {
		return 0, errors.Wrap(err, "mark all read")
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, id int64) error {
	return r.execOwned(ctx, deleteNotifSQL, id, userID)
}

func (r *NotificationRepository) Find(ctx context.Context, id int64) (*notification.Notification, error) {
	rows, err := r.pool.Query(ctx, findNotificationSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "find notification %d", id)
	}

	n, err := pgx.CollectExactlyOneRow(rows, scanNotification)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find notification %d", id)
	}
	return &n, nil
}

func (r *NotificationRepository) ListAll(ctx context.Context, f notification.Filter) ([]notification.Notification, error) {
	rows, err := r.pool.Query(ctx, listAllNotificationsSQL, f.UserID, f.Read)
	if err != nil {
		return nil, errors.Wrap(err, "list all notifications")
	}

	list, err := pgx.CollectRows(rows, scanNotification)
	if err != nil {
		return nil, errors.Wrap(err, "list all notifications")
	}
	return list, nil
}

func (r *NotificationRepository) Update(ctx context.Context, n *notification.Notification) error {
	tag, err := r.pool.Exec(ctx, updateNotifSQL, n.ID, n.Title, n.Message, string(n.Kind), n.Read)
	if err != nil {
		return errors.Wrapf(err, "update notification %d", n.ID)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) Remove(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, removeNotifSQL, id)
	if err != nil {
		return errors.Wrapf(err, "remove notification %d", id)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) execOwned(ctx context.Context, sql string, id, userID int64) error {
	tag, err := r.pool.Exec(ctx, sql, id, userID)
	if err != nil {
		return errors.Wrapf(err, "update notification %d", id)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func scanNotification(row pgx.CollectableRow) (notification.Notification, error) {
	var (
		n    notification.Notification
		kind string
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &kind, &n.Read, &n.CreatedAt)
	n.Kind = notification.Kind(kind)
	return n, err
}
