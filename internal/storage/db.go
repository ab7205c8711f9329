// Package storage is the optional SQLite backend of the relay. It holds the
// banned user list when bans.driver is "sqlite".
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"tgrelay/internal/config"
	"tgrelay/internal/storage/migrations"

	_ "modernc.org/sqlite"
)

// DB 封装数据库连接
type DB struct {
	*sql.DB
	path string
}

// Open 打开数据库连接并执行迁移
func Open(ctx context.Context, path string) (*DB, error) {
	expandedPath, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(expandedPath), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", expandedPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// 单连接，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if err := migrations.Run(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{DB: db, path: expandedPath}, nil
}

// Path 返回数据库文件路径
func (db *DB) Path() string {
	return db.path
}

// WithTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
