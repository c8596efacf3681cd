package cache

import "context"

const leaderboardKey = "leaderboard:ratings"

// RatingEntry is one row of a leaderboard read: a team name and its rating.
type RatingEntry struct {
	TeamName string
	Rating   int
}

// RatingCache caches current ratings in a Redis sorted set so a leaderboard
// read never has to scan the player table. It is not the source of truth:
// the player table is, and every cache write here shadows a DB write the
// caller already made or is about to make.
type RatingCache struct {
	cache *Cache
}

// NewRatingCache wires a rating cache on top of an existing Redis cache.
func NewRatingCache(cache *Cache) *RatingCache {
	return &RatingCache{cache: cache}
}

// SetRating stores a team's absolute current rating.
func (rc *RatingCache) SetRating(ctx context.Context, teamName string, rating int) error {
	return rc.cache.ZAdd(ctx, leaderboardKey, float64(rating), teamName)
}

// BumpRating applies a relative rating delta, without needing the team's
// prior score. Used for optimistic, mid-batch leaderboard updates ahead of
// the authoritative DB write that lands once the whole batch completes.
func (rc *RatingCache) BumpRating(ctx context.Context, teamName string, delta int) error {
	return rc.cache.ZIncrBy(ctx, leaderboardKey, float64(delta), teamName)
}

// Evict drops a team's cached rating, forcing the next read to fall back to
// the player table. Used when a rating write's outcome is unknown, so the
// cache never serves a value that might not match what was persisted.
func (rc *RatingCache) Evict(ctx context.Context, teamName string) error {
	return rc.cache.ZRem(ctx, leaderboardKey, teamName)
}

// Top returns up to limit teams ordered by rating descending.
func (rc *RatingCache) Top(ctx context.Context, limit int64) ([]RatingEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := rc.cache.ZRevRangeWithScores(ctx, leaderboardKey, 0, limit-1)
	if err != nil {
		return nil, err
	}
	entries := make([]RatingEntry, 0, len(rows))
	for _, row := range rows {
		member, ok := row.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, RatingEntry{TeamName: member, Rating: int(row.Score)})
	}
	return entries, nil
}
