package db

import (
	"context"
	"database/sql"
	"sort"

	"github.com/bmstu-itstech/matchorch/internal/infrastructure/cache"
	"github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PlayerRepository persists current_rating rows keyed by team_name.
type PlayerRepository struct {
	db      *DB
	ratings *cache.RatingCache
}

// NewPlayerRepository creates a player repository. ratings may be nil, in
// which case leaderboard reads always fall through to the player table.
func NewPlayerRepository(db *DB, ratings *cache.RatingCache) *PlayerRepository {
	return &PlayerRepository{db: db, ratings: ratings}
}

// GetRating returns a team's current rating, or ErrNotFound if the team has
// no row yet.
func (r *PlayerRepository) GetRating(ctx context.Context, teamName string) (int, error) {
	var rating int
	query := `SELECT current_rating FROM player WHERE team_name = $1`
	if err := r.db.QueryRowWithMetrics(ctx, "player_get_rating", &rating, query, teamName); err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.ErrNotFound.WithMessage("team has no rating row")
		}
		return 0, errors.Wrap(err, "failed to get player rating")
	}
	return rating, nil
}

// GetRatings batches GetRating for several teams, silently omitting teams
// with no row; callers are expected to log the gap.
func (r *PlayerRepository) GetRatings(ctx context.Context, teamNames []string) (map[string]int, error) {
	if len(teamNames) == 0 {
		return map[string]int{}, nil
	}

	type row struct {
		TeamName string `db:"team_name"`
		Rating   int    `db:"current_rating"`
	}
	var rows []row
	query := `SELECT team_name, current_rating FROM player WHERE team_name = ANY($1)`
	if err := r.db.QueryWithMetrics(ctx, "player_get_ratings", &rows, query, pq.Array(teamNames)); err != nil {
		return nil, errors.Wrap(err, "failed to get player ratings")
	}

	ratings := make(map[string]int, len(rows))
	for _, rw := range rows {
		ratings[rw.TeamName] = rw.Rating
	}
	return ratings, nil
}

// AdjustRatings applies unconditional rating writes: newRatings maps a team
// to its already-computed post-batch rating, which this sets directly
// rather than accumulating. Per-row failures are logged but do not abort
// the batch: a ranked scrimmage's correctness does not depend on any
// single row succeeding.
func (r *PlayerRepository) AdjustRatings(ctx context.Context, newRatings map[string]int) {
	query := `
		INSERT INTO player (team_name, current_rating)
		VALUES ($1, $2)
		ON CONFLICT (team_name) DO UPDATE SET current_rating = $2
	`
	for teamName, rating := range newRatings {
		if _, err := r.db.ExecWithMetrics(ctx, "player_adjust_rating", query, teamName, rating); err != nil {
			r.db.log.LogError("failed to adjust player rating", err,
				zap.String("team_name", teamName), zap.Int("rating", rating))
			if r.ratings != nil {
				if cerr := r.ratings.Evict(ctx, teamName); cerr != nil {
					r.db.log.LogError("failed to evict stale leaderboard entry", cerr, zap.String("team_name", teamName))
				}
			}
			continue
		}
		if r.ratings != nil {
			if err := r.ratings.SetRating(ctx, teamName, rating); err != nil {
				r.db.log.LogError("failed to update leaderboard cache", err, zap.String("team_name", teamName))
			}
		}
	}
}

// BumpRatingCache optimistically applies a relative rating delta to the
// leaderboard cache, ahead of the authoritative AdjustRatings write that
// lands once a whole batch completes. A nil ratings cache makes this a
// no-op, so callers don't need to check whether caching is configured.
func (r *PlayerRepository) BumpRatingCache(ctx context.Context, teamName string, delta int) {
	if r.ratings == nil {
		return
	}
	if err := r.ratings.BumpRating(ctx, teamName, delta); err != nil {
		r.db.log.LogError("failed to bump leaderboard cache", err, zap.String("team_name", teamName))
	}
}

// Leaderboard returns up to limit teams ordered by rating descending. It
// reads the sorted-set cache first and only falls back to the player table
// on a cache miss or when no cache is configured, backfilling the cache
// from that read so the next call hits it.
func (r *PlayerRepository) Leaderboard(ctx context.Context, limit int) ([]cache.RatingEntry, error) {
	if r.ratings != nil {
		entries, err := r.ratings.Top(ctx, int64(limit))
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
	}

	type row struct {
		TeamName string `db:"team_name"`
		Rating   int    `db:"current_rating"`
	}
	var rows []row
	query := `SELECT team_name, current_rating FROM player ORDER BY current_rating DESC LIMIT $1`
	if err := r.db.QueryWithMetrics(ctx, "player_leaderboard", &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to read leaderboard")
	}

	entries := make([]cache.RatingEntry, len(rows))
	for i, rw := range rows {
		entries[i] = cache.RatingEntry{TeamName: rw.TeamName, Rating: rw.Rating}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rating > entries[j].Rating })

	if r.ratings != nil {
		for _, e := range entries {
			if err := r.ratings.SetRating(ctx, e.TeamName, e.Rating); err != nil {
				r.db.log.LogError("failed to backfill leaderboard cache", err, zap.String("team_name", e.TeamName))
			}
		}
	}
	return entries, nil
}
