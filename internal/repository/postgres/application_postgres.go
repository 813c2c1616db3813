package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"btcarts/internal/model"
	"btcarts/internal/repository"
)

// ApplicationPostgres is a PostgreSQL implementation of repository.ApplicationRepository.
// Uploads and review shares live in child tables keyed by application id.
type ApplicationPostgres struct {
	db *sql.DB
}

// NewApplicationPostgres creates a new ApplicationPostgres repository.
func NewApplicationPostgres(db *sql.DB) *ApplicationPostgres {
	return &ApplicationPostgres{db: db}
}

var _ repository.ApplicationRepository = (*ApplicationPostgres)(nil)

const applicationColumns = `id, COALESCE(applicant_name, ''), COALESCE(email, ''), COALESCE(project_title, ''),
		status, admin_notes, awarded_at, report_due_at, report_received_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*model.Application, error) {
	var (
		a                               model.Application
		status                          string
		awarded, reportDue, reportRecvd sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.ApplicantName,
		&a.Email,
		&a.ProjectTitle,
		&status,
		&a.AdminNotes,
		&awarded,
		&reportDue,
		&reportRecvd,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = model.ApplicationStatus(status)
	a.AwardedAt = timePtr(awarded)
	a.Oversight.ReportDueAt = timePtr(reportDue)
	a.Oversight.ReportReceivedAt = timePtr(reportRecvd)
	a.Uploads = []model.Upload{}
	a.ReviewShares = []model.ReviewShare{}
	return &a, nil
}

// FindByID fetches an application with its uploads and review shares.
func (r *ApplicationPostgres) FindByID(ctx context.Context, id string) (*model.Application, error) {
	q := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	a, err := scanApplication(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if err := r.loadUploads(ctx, a); err != nil {
		return nil, err
	}
	if err := r.loadShares(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *ApplicationPostgres) loadUploads(ctx context.Context, a *model.Application) error {
	const q = `SELECT file_id FROM application_uploads WHERE application_id = $1 ORDER BY position`
	rows, err := r.db.QueryContext(ctx, q, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var u model.Upload
		if err := rows.Scan(&u.FileID); err != nil {
			return err
		}
		a.Uploads = append(a.Uploads, u)
	}
	return rows.Err()
}

func (r *ApplicationPostgres) loadShares(ctx context.Context, a *model.Application) error {
	const q = `SELECT token_hash, expires_at, created_at FROM review_shares WHERE application_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s model.ReviewShare
		if err := rows.Scan(&s.TokenHash, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return err
		}
		a.ReviewShares = append(a.ReviewShares, s)
	}
	return rows.Err()
}

// List returns applications using LIMIT/OFFSET pagination and a total count.
// Child collections are not loaded for list rows.
func (r *ApplicationPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Application], error) {
	const qCount = `SELECT COUNT(*) FROM applications`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	qList := `SELECT ` + applicationColumns + ` FROM applications
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Application]{
		Items: items,
		Total: total,
	}, nil
}

// Update writes the non-nil fields of upd in one statement and returns the stored record.
// A RequireAwarded update carries the status condition in its WHERE clause.
func (r *ApplicationPostgres) Update(ctx context.Context, id string, upd model.ApplicationUpdate) (*model.Application, error) {
	const q = `
		UPDATE applications SET
			status             = COALESCE($2, status),
			admin_notes        = COALESCE($3, admin_notes),
			awarded_at         = COALESCE($4, awarded_at),
			report_due_at      = COALESCE($5, report_due_at),
			report_received_at = CASE WHEN $6::boolean THEN $7::timestamptz ELSE report_received_at END,
			updated_at         = $8
		WHERE id = $1 AND (NOT $9::boolean OR status = 'awarded')
		RETURNING id
	`
	var status any
	if upd.Status != nil {
		status = string(*upd.Status)
	}
	var stored string
	err := r.db.QueryRowContext(ctx, q,
		id,
		status,
		nullString(upd.AdminNotes),
		nullTime(upd.AwardedAt),
		nullTime(upd.ReportDueAt),
		upd.SetReportReceived,
		nullTime(upd.ReportReceivedAt),
		upd.UpdatedAt,
		upd.RequireAwarded,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missOrConflict(ctx, id, upd.RequireAwarded)
		}
		return nil, err
	}
	return r.FindByID(ctx, stored)
}

// missOrConflict classifies a conditional write that matched no row.
func (r *ApplicationPostgres) missOrConflict(ctx context.Context, id string, conditional bool) error {
	if !conditional {
		return repository.ErrNotFound
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// AddReviewShare inserts the share and refreshes updated_at in one transaction.
// The application row is locked first, so concurrent issuers for the same
// application count active shares one at a time.
func (r *ApplicationPostgres) AddReviewShare(ctx context.Context, id string, share model.ReviewShare, updatedAt time.Time, maxActive int) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM applications WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}

	if maxActive > 0 {
		var active int
		err = tx.QueryRowContext(ctx,
			`SELECT count(*) FROM review_shares WHERE application_id = $1 AND expires_at > $2`,
			id, share.CreatedAt,
		).Scan(&active)
		if err != nil {
			return err
		}
		if active >= maxActive {
			return repository.ErrConflict
		}
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO review_shares (application_id, token_hash, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		id, share.TokenHash, share.ExpiresAt, share.CreatedAt,
	); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE applications SET updated_at = $2 WHERE id = $1`, id, updatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// FindByReviewShare resolves a share and file pair to its owning application.
// Only the application row is loaded.
func (r *ApplicationPostgres) FindByReviewShare(ctx context.Context, tokenHash, fileID string, now time.Time) (*model.Application, error) {
	q := `SELECT ` + applicationColumns + ` FROM applications a
		WHERE EXISTS (
			SELECT 1 FROM review_shares s
			WHERE s.application_id = a.id AND s.token_hash = $1 AND s.expires_at > $2
		)
		AND EXISTS (
			SELECT 1 FROM application_uploads u
			WHERE u.application_id = a.id AND u.file_id = $3
		)
		LIMIT 1`
	a, err := scanApplication(r.db.QueryRowContext(ctx, q, tokenHash, now, fileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
