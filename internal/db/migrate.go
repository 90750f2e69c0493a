package db

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate runs all embedded SQL migration files in filename order, tracking
// applied files in schema_migrations.
func Migrate(ctx context.Context) error {
	sqlDB, err := getDB()
	if err != nil {
		return err
	}
	_, err = sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		var count int
		err = sqlDB.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations WHERE filename = ?`, name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := sqlDB.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := sqlDB.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES (?)`, name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		log.Info().Str("migration", name).Msg("applied schema migration")
	}
	return nil
}

// GetDBVersion returns the numeric prefix of the last applied migration.
func GetDBVersion(ctx context.Context) (int, error) {
	return WithTxRtn(ctx, func(tx *TxWrap) (int, error) {
		last := tx.GetString(`SELECT filename FROM schema_migrations ORDER BY filename DESC LIMIT 1`)
		if last == "" {
			return 0, nil
		}
		numStr, _, _ := strings.Cut(last, "_")
		version, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid migration filename %q", last)
		}
		return version, nil
	})
}
