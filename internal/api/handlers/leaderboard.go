package handlers

import (
	"net/http"
	"strconv"

	"github.com/bmstu-itstech/matchorch/internal/infrastructure/db"
	"github.com/bmstu-itstech/matchorch/pkg/errors"
)

const defaultLeaderboardLimit = 50

// LeaderboardHandler serves current ratings ordered by rank.
type LeaderboardHandler struct {
	players *db.PlayerRepository
}

// NewLeaderboardHandler creates a leaderboard handler.
func NewLeaderboardHandler(players *db.PlayerRepository) *LeaderboardHandler {
	return &LeaderboardHandler{players: players}
}

type leaderboardEntry struct {
	Rank     int    `json:"rank"`
	TeamName string `json:"team_name"`
	Rating   int    `json:"rating"`
}

// GetLeaderboard returns the top-rated teams, most recent batch results
// included. limit defaults to 50 and is capped at 200.
// GET /leaderboard
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, errors.ErrValidation.WithMessage("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := h.players.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	entries := make([]leaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = leaderboardEntry{Rank: i + 1, TeamName: row.TeamName, Rating: row.Rating}
	}

	writeJSON(w, http.StatusOK, entries)
}
