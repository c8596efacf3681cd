package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	domain "github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/internal/engine"
	"github.com/bmstu-itstech/matchorch/internal/infrastructure/db"
	"github.com/bmstu-itstech/matchorch/internal/storage"
	"github.com/bmstu-itstech/matchorch/internal/tournament"
	"github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"go.uber.org/zap"
)

// TournamentHandler launches single-elimination tournaments and routes each
// series map's callback back to the pairing awaiting it.
type TournamentHandler struct {
	orch    *tournament.Orchestrator
	engine  *engine.Registry
	matches *db.MatchRepository
	store   *storage.ObjectStore
	log     *logger.Logger
}

// NewTournamentHandler creates a tournament handler.
func NewTournamentHandler(orch *tournament.Orchestrator, eng *engine.Registry, matches *db.MatchRepository, store *storage.ObjectStore, log *logger.Logger) *TournamentHandler {
	return &TournamentHandler{orch: orch, engine: eng, matches: matches, store: store, log: log}
}

type tournamentRequest struct {
	EngineName         string              `json:"game_engine_name"`
	NumTournamentSpots int                 `json:"num_tournament_spots"`
	Submissions        []domain.Submission `json:"submissions"`
}

// RunTournament validates the active engine, launches a bracket in the
// background, and returns its id.
// POST /tournament
func (h *TournamentHandler) RunTournament(w http.ResponseWriter, r *http.Request) {
	var req tournamentRequest
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

	tournamentID, err := h.orch.Start(r.Context(), tournament.Request{
		EngineName:         req.EngineName,
		NumTournamentSpots: req.NumTournamentSpots,
		Submissions:        req.Submissions,
	}, snap)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{"tournament_id": tournamentID})
}

// TournamentCallback receives one series map's runner output, parses the
// replay, and delivers the result to the pairing awaiting it. The pairing
// itself records the finished match; this handler only needs to record
// failures, since a pairing that never reports would otherwise block its
// series forever.
// POST /tournament_callback/{tournament_id}/{match_id}
func (h *TournamentHandler) TournamentCallback(w http.ResponseWriter, r *http.Request) {
	tournamentID, matchID, err := parseBatchAndMatchID(r, "tournament_id")
	if err != nil {
		writeError(w, err)
		return
	}

	raw, err := storage.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	destFilename := fmt.Sprintf("tournament-%d.json", matchID)
	winner, err := h.store.ProcessReplay(raw, destFilename)
	if err != nil {
		if ferr := h.matches.UpdateFailed(r.Context(), matchID); ferr != nil {
			h.log.LogError("failed to mark tournament match failed", ferr, zap.Uint64("match_id", matchID))
		}
		if derr := h.orch.Deliver(tournamentID, matchID, 0, ""); derr != nil {
			h.log.LogError("failed to release tournament pairing after failure", derr, zap.Uint64("tournament_id", tournamentID), zap.Uint64("match_id", matchID))
		}
		writeError(w, errors.ErrReplayParse.WithError(err))
		return
	}

	if err := h.orch.Deliver(tournamentID, matchID, winner, destFilename); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
