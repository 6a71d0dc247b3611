package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Version string
	SQL     string
}

// Migrations returns the embedded schema files in version order.
func Migrations() ([]Migration, error) {
	names, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return nil, fmt.Errorf("platform/db: list migrations: %w", err)
	}
	sort.Strings(names)
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		body, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("platform/db: read %s: %w", name, err)
		}
		out = append(out, Migration{Version: name[len("schema/"):], SQL: string(body)})
	}
	return out, nil
}

// Migrate applies pending migrations in a single transaction.
func Migrate(ctx context.Context, pool TxBeginner, logger *slog.Logger) error {
	migrations, err := Migrations()
	if err != nil {
		return err
	}
	return WithTx(ctx, pool, pgx.Serializable, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
			return fmt.Errorf("platform/db: ensure schema_migrations: %w", err)
		}
		for _, m := range migrations {
			var applied string
			err := tx.QueryRow(ctx, `SELECT version FROM schema_migrations WHERE version = $1`, m.Version).Scan(&applied)
			if err == nil {
				continue
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("platform/db: check %s: %w", m.Version, err)
			}
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("platform/db: apply %s: %w", m.Version, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
				return fmt.Errorf("platform/db: record %s: %w", m.Version, err)
			}
			if logger != nil {
				logger.Info("migration applied", slog.String("version", m.Version))
			}
		}
		return nil
	})
}
