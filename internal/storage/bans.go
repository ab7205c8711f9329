package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BanStore persists the banned user ids in the banned_users table.
// Save rewrites the whole table so it always mirrors the in-memory set.
type BanStore struct {
	db      *DB
	timeout time.Duration
}

// NewBanStore returns a store backed by db.
func NewBanStore(db *DB) *BanStore {
	return &BanStore{db: db, timeout: 5 * time.Second}
}

// Load returns all banned ids in ascending order.
func (s *BanStore) Load() ([]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM banned_users ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("query banned users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan banned user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Save replaces the stored list with ids.
func (s *BanStore) Save(ids []int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM banned_users"); err != nil {
			return fmt.Errorf("clear banned users: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO banned_users (user_id) VALUES (?)")
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("insert banned user %d: %w", id, err)
			}
		}
		return nil
	})
}

// String names the store in logs.
func (s *BanStore) String() string {
	return "sqlite:" + s.db.Path()
}
