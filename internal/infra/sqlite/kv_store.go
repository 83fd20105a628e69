package sqlite

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"learner-progress-service/internal/domain"
)

// KVStore keeps progress JSON in a single SQLite table. The quota caps
// the total bytes of keys and values, like browser local storage.
type KVStore struct {
	db    *sqlx.DB
	quota int
}

// NewKVStore wraps an opened database. quota <= 0 disables the limit.
func NewKVStore(db *sqlx.DB, quota int) *KVStore {
	return &KVStore{db: db, quota: quota}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "sqlite get %s", key)
	}
	return value, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin set")
	}
	defer tx.Rollback()

	if s.quota > 0 {
		var used int
		err := tx.GetContext(ctx, &used,
			`SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0) FROM kv WHERE key <> ?`, key)
		if err != nil {
			return errors.Wrap(err, "measure usage")
		}
		if need := used + len(key) + len(value); need > s.quota {
			return errors.Wrapf(domain.ErrQuotaExceeded, "set %s: need %d of %d bytes", key, need, s.quota)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return errors.Wrapf(err, "sqlite set %s", key)
	}
	return errors.Wrap(tx.Commit(), "commit set")
}

func (s *KVStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "sqlite delete %s", key)
	}
	return nil
}

// Keys lists stored keys in order.
func (s *KVStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, `SELECT key FROM kv ORDER BY key`); err != nil {
		return nil, errors.Wrap(err, "sqlite keys")
	}
	return keys, nil
}
