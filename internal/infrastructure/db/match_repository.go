package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/pkg/errors"
)

// MatchRepository persists MatchRecord rows keyed by match_id.
type MatchRepository struct {
	db *DB
}

// NewMatchRepository creates a match repository.
func NewMatchRepository(db *DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// InsertPending writes a PENDING row. Callers are expected to have already
// zeroed outcome/replay_filename/elo_change on the record.
func (r *MatchRepository) InsertPending(ctx context.Context, rec match.Record) error {
	query := `
		INSERT INTO match (match_id, team_1, team_2, match_type, match_status,
		                    outcome, replay_filename, replay_url, elo_change, map_name, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`
	_, err := r.db.ExecWithMetrics(ctx, "match_insert_pending", query,
		rec.MatchID, rec.Team1, rec.Team2, rec.Kind, match.StatusPending,
		match.OutcomeNone, "", "", 0, rec.MapName,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert pending match")
	}
	return nil
}

// UpdateFinished marks a match FINISHED with its outcome and replay details.
func (r *MatchRepository) UpdateFinished(ctx context.Context, rec match.Record) error {
	query := `
		UPDATE match
		SET match_status = $2, outcome = $3, replay_filename = $4,
		    replay_url = $5, elo_change = $6, last_updated = NOW()
		WHERE match_id = $1
	`
	result, err := r.db.ExecWithMetrics(ctx, "match_update_finished", query,
		rec.MatchID, match.StatusFinished, rec.Outcome, rec.ReplayFilename,
		rec.ReplayURL, rec.EloChange,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update finished match")
	}
	return rowsAffectedOrNotFound(result)
}

// UpdateFailed marks a match FAILED, leaving every other field untouched.
func (r *MatchRepository) UpdateFailed(ctx context.Context, matchID uint64) error {
	query := `UPDATE match SET match_status = $2, last_updated = NOW() WHERE match_id = $1`
	result, err := r.db.ExecWithMetrics(ctx, "match_update_failed", query, matchID, match.StatusFailed)
	if err != nil {
		return errors.Wrap(err, "failed to update failed match")
	}
	return rowsAffectedOrNotFound(result)
}

// GetByID fetches a single match row.
func (r *MatchRepository) GetByID(ctx context.Context, matchID uint64) (*match.Record, error) {
	var rec match.Record
	query := `
		SELECT match_id, team_1, team_2, match_type, match_status, outcome,
		       replay_filename, replay_url, elo_change, map_name, last_updated
		FROM match WHERE match_id = $1
	`
	if err := r.db.QueryRowWithMetrics(ctx, "match_get_by_id", &rec, query, matchID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrNotFound.WithMessage("match not found")
		}
		return nil, errors.Wrap(err, "failed to get match")
	}
	return &rec, nil
}

// List returns match rows ordered by most recently updated first, up to
// limit rows (0 means unbounded).
func (r *MatchRepository) List(ctx context.Context, limit int) ([]match.Record, error) {
	var recs []match.Record
	query := `
		SELECT match_id, team_1, team_2, match_type, match_status, outcome,
		       replay_filename, replay_url, elo_change, map_name, last_updated
		FROM match ORDER BY last_updated DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	if err := r.db.QueryWithMetrics(ctx, "match_list", &recs, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list matches")
	}
	return recs, nil
}

// NextMatchID scans for 1 + max(match_id), or 1 if the table is empty.
func (r *MatchRepository) NextMatchID(ctx context.Context) (uint64, error) {
	var maxID sql.NullInt64
	query := `SELECT MAX(match_id) FROM match`
	if err := r.db.QueryRowContext(ctx, query).Scan(&maxID); err != nil {
		return 0, errors.Wrap(err, "failed to scan max match id")
	}
	if !maxID.Valid {
		return 1, nil
	}
	return uint64(maxID.Int64) + 1, nil
}

// FindStalePending returns the ids of matches still PENDING after
// olderThan has elapsed since their last update. Used by the lost-callback
// watchdog to bound how long a match can sit non-terminal.
func (r *MatchRepository) FindStalePending(ctx context.Context, olderThan time.Duration) ([]uint64, error) {
	var ids []uint64
	query := `
		SELECT match_id FROM match
		WHERE match_status = $1 AND last_updated < $2
	`
	cutoff := time.Now().Add(-olderThan)
	if err := r.db.QueryWithMetrics(ctx, "match_find_stale_pending", &ids, query, match.StatusPending, cutoff); err != nil {
		return nil, errors.Wrap(err, "failed to find stale pending matches")
	}
	return ids, nil
}

func rowsAffectedOrNotFound(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrNotFound.WithMessage("match not found")
	}
	return nil
}
