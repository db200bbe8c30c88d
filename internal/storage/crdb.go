package storage

import (
	"context"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/scraping050/proyecto-garantias-sub001/internal/notification"
)

const upsertNotification = "UPSERT INTO notification_cache(id, kind, title, message, priority, is_read, link, created_at, revision, cached_at) " +
	"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())"

// CRDBPersistence keeps the engine's last visible records in CockroachDB
// so a restarted daemon has something to show before its first poll.
type CRDBPersistence struct {
	connPool *pgxpool.Pool
}

func NewCRDBPersistence(pool *pgxpool.Pool) *CRDBPersistence {
	return &CRDBPersistence{
		connPool: pool,
	}
}

func (crdbp *CRDBPersistence) Load(ctx context.Context) ([]notification.Record, error) {
	rows, err := crdbp.connPool.Query(ctx,
		"SELECT id, kind, title, message, priority, is_read, link, created_at, revision "+
			"FROM notification_cache ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]notification.Record, 0)
	for rows.Next() {
		n := &Notification{}
		errScan := rows.Scan(&n.ID, &n.Kind, &n.Title, &n.Message, &n.Priority, &n.IsRead, &n.Link, &n.CreatedAt, &n.Revision)
		if errScan != nil {
			return nil, errScan
		}
		records = append(records, n.toRecord())
	}
	return records, rows.Err()
}

// Save replaces the cached set with records in a single transaction.
func (crdbp *CRDBPersistence) Save(ctx context.Context, records []notification.Record) error {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return crdbpgx.ExecuteTx(ctx, crdbp.connPool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, errExec := tx.Exec(ctx, "DELETE FROM notification_cache WHERE id <> ALL($1)", ids); errExec != nil {
			return errExec
		}
		if len(records) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, r := range records {
			n := toDBNotification(r)
			batch.Queue(upsertNotification, n.ID, n.Kind, n.Title, n.Message, n.Priority, n.IsRead, n.Link, n.CreatedAt, n.Revision)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (crdbp *CRDBPersistence) Get(ctx context.Context, id int64, tx pgx.Tx) (*Notification, error) {
	r := tx.QueryRow(ctx, "SELECT id, kind, title, message, priority, is_read, link, created_at, revision FROM notification_cache WHERE id = $1", id)
	n := &Notification{}
	errScan := r.Scan(&n.ID, &n.Kind, &n.Title, &n.Message, &n.Priority, &n.IsRead, &n.Link, &n.CreatedAt, &n.Revision)
	if errScan != nil {
		return nil, errScan
	}
	return n, nil
}
