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

func TestScrimmageHandler_RunScrimmage_InvalidBody(t *testing.T) {
	h := NewScrimmageHandler(nil, newActiveEngineRegistry(t), nil, nil, testLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/scrimmage", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()

	h.RunScrimmage(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScrimmageHandler_RunScrimmage_NoActiveEngine(t *testing.T) {
	reg := engine.New(t.TempDir(), nil, nil, testLogger(t))
	h := NewScrimmageHandler(nil, reg, nil, nil, testLogger(t))

	body, _ := json.Marshal(scrimmageRequest{EngineName: "awap2024"})
	req := httptest.NewRequest(http.MethodPost, "/scrimmage", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.RunScrimmage(w, req)

	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestScrimmageHandler_RunScrimmage_WrongEngineName(t *testing.T) {
	h := NewScrimmageHandler(nil, newActiveEngineRegistry(t), nil, nil, testLogger(t))

	body, _ := json.Marshal(scrimmageRequest{EngineName: "other-engine"})
	req := httptest.NewRequest(http.MethodPost, "/scrimmage", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.RunScrimmage(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScrimmageHandler_ScrimmageCallback_InvalidIDs(t *testing.T) {
	h := NewScrimmageHandler(nil, newActiveEngineRegistry(t), nil, nil, testLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/scrimmage_callback/not-a-number/1", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("scrimmage_id", "not-a-number")
	rctx.URLParams.Add("match_id", "1")
	req = withChiRouteContext(req, rctx)
	w := httptest.NewRecorder()

	h.ScrimmageCallback(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
