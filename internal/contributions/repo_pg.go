package contributions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const contributionColumns = `id, submitter_id, image_ref, file_name, mime_type, size_bytes,
       description, location_hint, route_name_hint, additional_notes,
       status, backend, confidence, extracted_payload, validation_message, attempts,
       submitted_at, processed_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new contribution.
func (r *PGRepo) Create(ctx context.Context, c Contribution) error {
	const query = `
INSERT INTO contributions (
	id, submitter_id, image_ref, file_name, mime_type, size_bytes,
	description, location_hint, route_name_hint, additional_notes,
	status, backend, confidence, extracted_payload, validation_message, attempts,
	submitted_at, processed_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.DB.ExecContext(ctx, query,
		c.ID,
		c.SubmitterID,
		c.ImageRef,
		c.FileName,
		c.MimeType,
		c.SizeBytes,
		c.Description,
		c.LocationHint,
		c.RouteNameHint,
		c.AdditionalNotes,
		string(c.Status),
		c.Backend,
		nullFloat(c.Confidence),
		nullJSON(c.ExtractedPayload),
		c.ValidationMessage,
		c.Attempts,
		c.SubmittedAt,
		nullTime(c.ProcessedAt),
		c.UpdatedAt,
	)
	return eris.Wrapf(err, "insert contribution %s", c.ID)
}

// GetByID returns a contribution by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE id = $1`
	c, err := scanContribution(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contribution{}, ErrNotFound
		}
		return Contribution{}, eris.Wrapf(err, "get contribution %s", id)
	}
	return c, nil
}

// ListBySubmitter returns a submitter's contributions newest first.
func (r *PGRepo) ListBySubmitter(ctx context.Context, submitterID string, limit, offset int) ([]Contribution, error) {
	query := `SELECT ` + contributionColumns + `
FROM contributions
WHERE submitter_id = $1
ORDER BY submitted_at DESC, id
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, submitterID, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "list contributions")
	}
	defer rows.Close()

	out := []Contribution{}
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scan contribution")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "list contributions")
}

// Finish records a terminal outcome. Only rows still in PROCESSING are updated.
func (r *PGRepo) Finish(ctx context.Context, id string, out Outcome) error {
	const query = `
UPDATE contributions
SET status = $2,
    validation_message = $3,
    backend = COALESCE(NULLIF($4, ''), backend),
    confidence = COALESCE($5, confidence),
    extracted_payload = COALESCE($6, extracted_payload),
    processed_at = $7,
    updated_at = $7
WHERE id = $1 AND status = 'PROCESSING'`
	res, err := r.DB.ExecContext(ctx, query,
		id,
		string(out.Status),
		out.Message,
		out.Backend,
		nullFloat(out.Confidence),
		nullJSON(out.Payload),
		out.FinishedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "finish contribution %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "finish contribution %s", id)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStaleTransition
	}
	return nil
}

// TransitionForRetry resets a retryable contribution to PROCESSING in one
// conditional UPDATE, so concurrent retries of the same id cannot both win.
func (r *PGRepo) TransitionForRetry(ctx context.Context, id string, now time.Time) (Contribution, bool, error) {
	query := `
UPDATE contributions
SET status = 'PROCESSING',
    validation_message = $2,
    processed_at = NULL,
    attempts = attempts + 1,
    updated_at = $3
WHERE id = $1 AND status IN ('PROCESSING_FAILED', 'LOW_CONFIDENCE_OCR', 'UPLOAD_FAILED')
RETURNING ` + contributionColumns
	c, err := scanContribution(r.DB.QueryRowContext(ctx, query, id, msgRetryRequested, now.UTC()))
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Contribution{}, false, eris.Wrapf(err, "retry contribution %s", id)
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return Contribution{}, false, err
	}
	return current, false, nil
}

// CountByStatus returns the number of contributions per status.
func (r *PGRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM contributions GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "count contributions")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "scan status count")
		}
		counts[Status(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "count contributions")
}

func scanContribution(row rowScanner) (Contribution, error) {
	var c Contribution
	var status string
	var imageRef, backend, notes, message sql.NullString
	var locationHint, routeHint sql.NullString
	var confidence sql.NullFloat64
	var payload []byte
	var processedAt sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.SubmitterID,
		&imageRef,
		&c.FileName,
		&c.MimeType,
		&c.SizeBytes,
		&c.Description,
		&locationHint,
		&routeHint,
		&notes,
		&status,
		&backend,
		&confidence,
		&payload,
		&message,
		&c.Attempts,
		&c.SubmittedAt,
		&processedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Contribution{}, err
	}
	c.Status = Status(status)
	c.ImageRef = imageRef.String
	c.LocationHint = locationHint.String
	c.RouteNameHint = routeHint.String
	c.AdditionalNotes = notes.String
	c.Backend = backend.String
	c.ValidationMessage = message.String
	if confidence.Valid {
		v := confidence.Float64
		c.Confidence = &v
	}
	if len(payload) > 0 {
		c.ExtractedPayload = payload
	}
	if processedAt.Valid {
		t := processedAt.Time
		c.ProcessedAt = &t
	}
	return c, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
