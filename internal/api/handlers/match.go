package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bmstu-itstech/matchorch/internal/domain/counter"
	domain "github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/internal/engine"
	"github.com/bmstu-itstech/matchorch/internal/infrastructure/db"
	matchpkg "github.com/bmstu-itstech/matchorch/internal/match"
	"github.com/bmstu-itstech/matchorch/internal/storage"
	"github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"go.uber.org/zap"
)

// MatchHandler runs single unranked matches and processes their callbacks.
// Unlike the ranked/tournament batches, an unranked match has no registry to
// route a result through: the callback writes the terminal MatchRecord
// directly.
type MatchHandler struct {
	counter *counter.Counter
	engine  *engine.Registry
	runner  *matchpkg.Runner
	matches *db.MatchRepository
	store   *storage.ObjectStore
	log     *logger.Logger
}

// NewMatchHandler creates a match handler.
func NewMatchHandler(c *counter.Counter, eng *engine.Registry, runner *matchpkg.Runner, matches *db.MatchRepository, store *storage.ObjectStore, log *logger.Logger) *MatchHandler {
	return &MatchHandler{counter: c, engine: eng, runner: runner, matches: matches, store: store, log: log}
}

// RunMatch submits one unranked match to the runner and returns its
// acknowledgement.
// POST /match
func (h *MatchHandler) RunMatch(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ErrInvalidInput.WithError(err))
		return
	}

	snap, err := h.engine.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	if req.EngineName != snap.Engine.Name {
		writeError(w, errors.ErrValidation.WithMessage("incompatible game engine"))
		return
	}
	if req.NumPlayers != len(req.Submissions) {
		writeError(w, errors.ErrValidation.WithMessage("number of players should match number of submissions"))
		return
	}
	if req.NumPlayers != snap.Engine.NumPlayers {
		writeError(w, errors.ErrValidation.WithMessage(fmt.Sprintf("expected %d players, received %d", snap.Engine.NumPlayers, req.NumPlayers)))
		return
	}

	mapName, err := snap.Engine.MapChoice.ChooseMap(domain.KindUnranked)
	if err != nil {
		writeError(w, err)
		return
	}

	matchID := h.counter.Next()
	ack, err := h.runner.SendJob(r.Context(), matchID, req, snap, domain.KindUnranked, mapName, "single_match_callback")
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ack)
}

// SingleMatchCallback receives the runner's raw output for an unranked
// match, parses it, and writes the terminal MatchRecord directly.
// POST /single_match_callback/{match_id}
func (h *MatchHandler) SingleMatchCallback(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseUint(chi.URLParam(r, "match_id"), 10, 64)
	if err != nil {
		writeError(w, errors.ErrInvalidInput.WithMessage("invalid match_id"))
		return
	}

	raw, err := storage.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	destFilename := fmt.Sprintf("unranked-%d.json", matchID)
	winner, err := h.store.ProcessReplay(raw, destFilename)
	if err != nil {
		if ferr := h.matches.UpdateFailed(r.Context(), matchID); ferr != nil {
			h.log.LogError("failed to mark unranked match failed", ferr, zap.Uint64("match_id", matchID))
		}
		writeError(w, errors.ErrReplayParse.WithError(err))
		return
	}

	outcome := domain.OutcomeTeam2
	if winner == storage.WinnerRed {
		outcome = domain.OutcomeTeam1
	}
	rec := domain.Record{
		MatchID:        matchID,
		Outcome:        outcome,
		ReplayFilename: destFilename,
		ReplayURL:      h.store.GetReplayURL(destFilename, 0),
	}
	if err := h.matches.UpdateFinished(r.Context(), rec); err != nil {
		h.log.LogError("failed to record finished unranked match", err, zap.Uint64("match_id", matchID))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
