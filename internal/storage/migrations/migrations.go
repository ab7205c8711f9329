// Package migrations applies the embedded schema scripts in version order.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

type script struct {
	version int
	name    string
	body    string
}

// Run 执行所有未应用的迁移，每个脚本一个事务
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return fmt.Errorf("get applied versions: %w", err)
	}

	scripts, err := loadScripts()
	if err != nil {
		return fmt.Errorf("load scripts: %w", err)
	}

	for _, s := range scripts {
		if applied[s.version] {
			continue
		}
		if err := apply(ctx, db, s); err != nil {
			return fmt.Errorf("apply %s: %w", s.name, err)
		}
	}
	return nil
}

// Version 返回当前数据库版本，未迁移时为 0
func Version(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM _migrations").Scan(&version)
	return version, err
}

// Latest returns the highest version shipped in FS.
func Latest() (int, error) {
	scripts, err := loadScripts()
	if err != nil || len(scripts) == 0 {
		return 0, err
	}
	return scripts[len(scripts)-1].version, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func loadScripts() ([]script, error) {
	entries, err := fs.ReadDir(FS, "scripts")
	if err != nil {
		return nil, err
	}

	var scripts []script
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseVersion(entry.Name())
		if err != nil {
			continue
		}
		// embed.FS 固定使用 '/'，不能用 filepath.Join
		body, err := fs.ReadFile(FS, path.Join("scripts", entry.Name()))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script{version: version, name: entry.Name(), body: string(body)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].version < scripts[j].version })
	return scripts, nil
}

// parseVersion reads the numeric prefix of "001_banned_users.sql".
func parseVersion(filename string) (int, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("invalid migration filename: %s", filename)
	}
	return strconv.Atoi(prefix)
}

func apply(ctx context.Context, db *sql.DB, s script) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.body); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (version, name) VALUES (?, ?)", s.version, s.name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
