package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

// sentinelTable is checked before running steps; its presence means the
// schema has already been applied.
const sentinelTable = "public.applications"

var steps = []migrationStep{
	{
		Name: "create_table_applications",
		SQL: `CREATE TABLE IF NOT EXISTS applications (
  id                 CHAR(24)    PRIMARY KEY,
  applicant_name     TEXT,
  email              TEXT,
  project_title      TEXT,
  status             TEXT        NOT NULL DEFAULT 'submitted'
                     CHECK (status IN ('submitted', 'under_review', 'needs_info', 'awarded', 'declined', 'withdrawn')),
  admin_notes        TEXT        NOT NULL DEFAULT '' CHECK (char_length(admin_notes) <= 5000),
  awarded_at         TIMESTAMPTZ,
  report_due_at      TIMESTAMPTZ,
  report_received_at TIMESTAMPTZ,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_application_uploads",
		SQL: `CREATE TABLE IF NOT EXISTS application_uploads (
  application_id CHAR(24) NOT NULL REFERENCES applications (id) ON DELETE CASCADE,
  position       INT      NOT NULL,
  file_id        CHAR(24) NOT NULL UNIQUE,
  PRIMARY KEY (application_id, position)
);`,
	},
	{
		Name: "create_table_review_shares",
		SQL: `CREATE TABLE IF NOT EXISTS review_shares (
  id             BIGSERIAL   PRIMARY KEY,
  application_id CHAR(24)    NOT NULL REFERENCES applications (id) ON DELETE CASCADE,
  token_hash     CHAR(64)    NOT NULL,
  expires_at     TIMESTAMPTZ NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_review_shares_token_hash",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_review_shares_token_hash ON review_shares (token_hash, expires_at);`,
	},
	{
		Name: "create_index_applications_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_applications_created_at ON applications (created_at DESC);`,
	},
}

// EnsureMigrated checks if the 'applications' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	start := time.Now()
	log = log.With(slog.String("component", "database"))

	log.Info("db_migration_check", slog.String("status", "starting"))

	var exists bool
	query := "SELECT to_regclass($1) IS NOT NULL"
	if err := db.QueryRowContext(ctx, query, sentinelTable).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			slog.String("status", "error"),
			slog.String("error_message", fmt.Sprintf("failed to check sentinel table: %v", err)),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			slog.String("status", "success"),
			slog.String("msg", "schema already exists, skipping migration"),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	log.Info("db_migration_start", slog.String("status", "in_progress"))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				slog.String("status", "error"),
				slog.String("migration_step", step.Name),
				slog.String("error_message", err.Error()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			slog.String("status", "success"),
			slog.String("migration_step", step.Name),
			slog.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success",
		slog.String("status", "success"),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return nil
}
