package routes

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// InsertBatch writes all candidates in one transaction. Rows whose id already
// exists are skipped, so re-expanding a bundle is harmless.
func (r *PGRepo) InsertBatch(ctx context.Context, candidates []Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	const query = `
INSERT INTO route_candidates (
    id,
    contribution_id,
    bus_number,
    origin,
    destination,
    departure_time,
    via,
    bus_type,
    route_group_id,
    schedule_index,
    total_schedules,
    status,
    provenance_note,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO NOTHING`

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "route candidates: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return eris.Wrap(err, "route candidates: prepare")
	}
	defer stmt.Close()

	for _, c := range candidates {
		if _, err := stmt.ExecContext(ctx,
			c.ID,
			c.ContributionID,
			nullString(c.BusNumber),
			c.Origin,
			c.Destination,
			c.DepartureTime,
			nullString(c.Via),
			nullString(c.BusType),
			c.RouteGroupID,
			c.ScheduleIndex,
			c.TotalSchedules,
			string(c.Status),
			c.ProvenanceNote,
			c.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "route candidates: insert %s", c.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "route candidates: commit")
}

// ListByContribution returns the candidates derived from one contribution.
func (r *PGRepo) ListByContribution(ctx context.Context, contributionID string) ([]Candidate, error) {
	const query = `
SELECT id, contribution_id, bus_number, origin, destination, departure_time, via, bus_type,
       route_group_id, schedule_index, total_schedules, status, provenance_note, created_at
FROM route_candidates
WHERE contribution_id = $1
ORDER BY route_group_id, schedule_index`
	rows, err := r.DB.QueryContext(ctx, query, contributionID)
	if err != nil {
		return nil, eris.Wrap(err, "route candidates: list")
	}
	defer rows.Close()

	out := []Candidate{}
	for rows.Next() {
		var c Candidate
		var busNumber, via, busType sql.NullString
		var status string
		if err := rows.Scan(
			&c.ID,
			&c.ContributionID,
			&busNumber,
			&c.Origin,
			&c.Destination,
			&c.DepartureTime,
			&via,
			&busType,
			&c.RouteGroupID,
			&c.ScheduleIndex,
			&c.TotalSchedules,
			&status,
			&c.ProvenanceNote,
			&c.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "route candidates: scan")
		}
		c.BusNumber = busNumber.String
		c.Via = via.String
		c.BusType = busType.String
		c.Status = Status(status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "route candidates: rows")
}

// Count returns the total number of candidates.
func (r *PGRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM route_candidates`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "route candidates: count")
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
