package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	domain "github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/internal/engine"
	"github.com/bmstu-itstech/matchorch/internal/infrastructure/db"
	"github.com/bmstu-itstech/matchorch/internal/scrimmage"
	"github.com/bmstu-itstech/matchorch/internal/storage"
	"github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"go.uber.org/zap"
)

// ScrimmageHandler launches ranked scrimmage batches and routes their
// per-pairing callbacks back to the orchestrator awaiting them.
type ScrimmageHandler struct {
	orch    *scrimmage.Orchestrator
	engine  *engine.Registry
	matches *db.MatchRepository
	store   *storage.ObjectStore
	log     *logger.Logger
}

// NewScrimmageHandler creates a scrimmage handler.
func NewScrimmageHandler(orch *scrimmage.Orchestrator, eng *engine.Registry, matches *db.MatchRepository, store *storage.ObjectStore, log *logger.Logger) *ScrimmageHandler {
	return &ScrimmageHandler{orch: orch, engine: eng, matches: matches, store: store, log: log}
}

type scrimmageRequest struct {
	EngineName  string              `json:"game_engine_name"`
	Submissions []domain.Submission `json:"submissions"`
}

// RunScrimmage validates the active engine, launches a ranked scrimmage
// batch in the background, and returns its id.
// POST /scrimmage
func (h *ScrimmageHandler) RunScrimmage(w http.ResponseWriter, r *http.Request) {
	var req scrimmageRequest
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

	scrimmageID, err := h.orch.Start(r.Context(), scrimmage.Request{
		EngineName:  req.EngineName,
		Submissions: req.Submissions,
	}, snap)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{"scrimmage_id": scrimmageID})
}

// ScrimmageCallback receives one pairing's runner output, parses the replay,
// and delivers the result to the scrimmage batch awaiting it. On failure it
// still delivers a zero-winner result so the batch's wait barrier doesn't
// hang forever on a pairing that will never report.
// POST /scrimmage_callback/{scrimmage_id}/{match_id}
func (h *ScrimmageHandler) ScrimmageCallback(w http.ResponseWriter, r *http.Request) {
	scrimmageID, matchID, err := parseBatchAndMatchID(r, "scrimmage_id")
	if err != nil {
		writeError(w, err)
		return
	}

	raw, err := storage.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	destFilename := fmt.Sprintf("ranked_scrimmage-%d.json", matchID)
	winner, err := h.store.ProcessReplay(raw, destFilename)
	if err != nil {
		if ferr := h.matches.UpdateFailed(r.Context(), matchID); ferr != nil {
			h.log.LogError("failed to mark scrimmage match failed", ferr, zap.Uint64("match_id", matchID))
		}
		if derr := h.orch.Deliver(scrimmageID, matchID, 0, ""); derr != nil {
			h.log.LogError("failed to release scrimmage pairing after failure", derr, zap.Uint64("scrimmage_id", scrimmageID), zap.Uint64("match_id", matchID))
		}
		writeError(w, errors.ErrReplayParse.WithError(err))
		return
	}

	if err := h.orch.Deliver(scrimmageID, matchID, winner, destFilename); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseBatchAndMatchID reads {batchParam} and {match_id} from the URL. Both
// scrimmage and tournament callbacks share this two-id URL shape.
func parseBatchAndMatchID(r *http.Request, batchParam string) (batchID, matchID uint64, err error) {
	batchID, err = strconv.ParseUint(chi.URLParam(r, batchParam), 10, 64)
	if err != nil {
		return 0, 0, errors.ErrInvalidInput.WithMessage("invalid " + batchParam)
	}
	matchID, err = strconv.ParseUint(chi.URLParam(r, "match_id"), 10, 64)
	if err != nil {
		return 0, 0, errors.ErrInvalidInput.WithMessage("invalid match_id")
	}
	return batchID, matchID, nil
}
