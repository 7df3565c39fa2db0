package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/markdave123-py/docvault/internal/logger"
)

//go:embed scripts/*.sql
var bootstrapFS embed.FS

// schemaVersion is the docvault_meta version the embedded scripts record.
const schemaVersion = 1

// EnsureBootstrapped creates every table and constraint that is missing.
// The scripts only use CREATE ... IF NOT EXISTS and insert-or-ignore, so
// calling this on a populated store never drops or alters data.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, d dialect) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	if err := db.QueryRowContext(ctxBoot, d.metaTableExistsQuery()).Scan(&exists); err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}

	if exists {
		var hasVersion bool
		q := d.rebind(`SELECT EXISTS (SELECT 1 FROM docvault_meta WHERE version = ?)`)
		if err := db.QueryRowContext(ctxBoot, q, schemaVersion).Scan(&hasVersion); err != nil {
			return fmt.Errorf("meta version check failed: %w", err)
		}
		logger.Debug("Bootstrap: meta table present (version %d recorded: %t)", schemaVersion, hasVersion)
	}

	return runBootstrap(ctxBoot, db, d)
}

func runBootstrap(ctx context.Context, db *sql.DB, d dialect) error {
	name := "scripts/" + d.scriptName()
	sqlBytes, err := bootstrapFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
