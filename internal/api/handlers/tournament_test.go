package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/bmstu-itstech/matchorch/internal/engine"
)

func TestTournamentHandler_RunTournament_InvalidBody(t *testing.T) {
	h := NewTournamentHandler(nil, newActiveEngineRegistry(t), nil, nil, testLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/tournament", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()

	h.RunTournament(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTournamentHandler_RunTournament_NoActiveEngine(t *testing.T) {
	reg := engine.New(t.TempDir(), nil, nil, testLogger(t))
	h := NewTournamentHandler(nil, reg, nil, nil, testLogger(t))

	body, _ := json.Marshal(tournamentRequest{EngineName: "awap2024", NumTournamentSpots: 4})
	req := httptest.NewRequest(http.MethodPost, "/tournament", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.RunTournament(w, req)

	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestTournamentHandler_RunTournament_WrongEngineName(t *testing.T) {
	h := NewTournamentHandler(nil, newActiveEngineRegistry(t), nil, nil, testLogger(t))

	body, _ := json.Marshal(tournamentRequest{EngineName: "other-engine", NumTournamentSpots: 4})
	req := httptest.NewRequest(http.MethodPost, "/tournament", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.RunTournament(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTournamentHandler_TournamentCallback_InvalidIDs(t *testing.T) {
	h := NewTournamentHandler(nil, newActiveEngineRegistry(t), nil, nil, testLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/tournament_callback/1/not-a-number", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("tournament_id", "1")
	rctx.URLParams.Add("match_id", "not-a-number")
	req = withChiRouteContext(req, rctx)
	w := httptest.NewRecorder()

	h.TournamentCallback(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
