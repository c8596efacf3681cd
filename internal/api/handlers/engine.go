package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bmstu-itstech/matchorch/internal/engine"
	"github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
)

// EngineHandler manages the single active game engine: upload-and-activate,
// and rebind-from-persisted-state on restart.
type EngineHandler struct {
	registry *engine.Registry
	log      *logger.Logger
}

// NewEngineHandler creates an engine handler.
func NewEngineHandler(registry *engine.Registry, log *logger.Logger) *EngineHandler {
	return &EngineHandler{registry: registry, log: log}
}

// SetEngine downloads the engine and makefile from the given URLs, stages
// them with the runner, and makes them the active engine.
// POST /game_engine
func (h *EngineHandler) SetEngine(w http.ResponseWriter, r *http.Request) {
	var e engine.Engine
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, errors.ErrInvalidInput.WithError(err))
		return
	}

	if err := h.registry.Upload(r.Context(), e); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "game engine set to " + e.Name})
}

// ReloadEngine rebinds the active engine to whatever was last persisted,
// without re-downloading anything.
// POST /game_engine_reload
func (h *EngineHandler) ReloadEngine(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reload(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	active, err := h.registry.Active()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "game engine set to " + active.Name})
}
