package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

const schemaVersion = 1

// EnsureBootstrapped creates the schema on first run, guarded by a meta
// table so the script only executes once per version. The embedding column
// is re-typed to the configured dimension afterwards so EMBED_DIM changes
// do not require a hand migration.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, embedDim int) error {
	bootCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	err := db.QueryRowContext(bootCtx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_name = 'chatppc_meta'
		)`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}

	if !exists {
		if err := runBootstrap(bootCtx, db); err != nil {
			return err
		}
		return alterEmbeddingDim(bootCtx, db, embedDim)
	}

	var hasVersion bool
	if err := db.QueryRowContext(bootCtx,
		`SELECT EXISTS (SELECT 1 FROM chatppc_meta WHERE version = $1)`, schemaVersion,
	).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		if err := runBootstrap(bootCtx, db); err != nil {
			return err
		}
	}
	return alterEmbeddingDim(bootCtx, db, embedDim)
}

func runBootstrap(ctx context.Context, db *sql.DB) error {
	sqlBytes, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
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

func alterEmbeddingDim(ctx context.Context, db *sql.DB, dim int) error {
	if dim <= 0 {
		return nil
	}
	stmt := fmt.Sprintf(`
		DO $$
		BEGIN
		IF EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'documents' AND column_name = 'embedding'
			AND NOT EXISTS (SELECT 1 FROM documents LIMIT 1)
		) THEN
			ALTER TABLE documents ALTER COLUMN embedding TYPE vector(%d);
		END IF;
		END $$;
	`, dim)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("alter embedding dimension: %w", err)
	}
	return nil
}
