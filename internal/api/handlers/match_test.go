package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/internal/engine"
)

// newActiveEngineRegistry wires an engine registry with an active two-player
// engine, without touching the runner beyond staging its artifacts.
func newActiveEngineRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	_, reg, e := newTestEngineHandler(t)
	require.NoError(t, reg.Upload(context.Background(), e))
	return reg
}

// withChiRouteContext attaches chi URL params to a request context, the way
// chi's router does for real requests.
func withChiRouteContext(r *http.Request, rctx *chi.Context) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestMatchHandler_RunMatch_InvalidBody(t *testing.T) {
	h := NewMatchHandler(nil, newActiveEngineRegistry(t), nil, nil, nil, testLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/match", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()

	h.RunMatch(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchHandler_RunMatch_NoActiveEngine(t *testing.T) {
	reg := engine.New(t.TempDir(), nil, nil, testLogger(t))
	h := NewMatchHandler(nil, reg, nil, nil, nil, testLogger(t))

	body, _ := json.Marshal(domain.Request{EngineName: "awap2024", NumPlayers: 2})
	req := httptest.NewRequest(http.MethodPost, "/match", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.RunMatch(w, req)

	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestMatchHandler_RunMatch_WrongEngineName(t *testing.T) {
	h := NewMatchHandler(nil, newActiveEngineRegistry(t), nil, nil, nil, testLogger(t))

	body, _ := json.Marshal(domain.Request{EngineName: "other-engine", NumPlayers: 2})
	req := httptest.NewRequest(http.MethodPost, "/match", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.RunMatch(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchHandler_RunMatch_SubmissionCountMismatch(t *testing.T) {
	h := NewMatchHandler(nil, newActiveEngineRegistry(t), nil, nil, nil, testLogger(t))

	body, _ := json.Marshal(domain.Request{
		EngineName:  "awap2024",
		NumPlayers:  2,
		Submissions: []domain.Submission{{Username: "test-a"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/match", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.RunMatch(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchHandler_RunMatch_PlayerCountMismatch(t *testing.T) {
	h := NewMatchHandler(nil, newActiveEngineRegistry(t), nil, nil, nil, testLogger(t))

	body, _ := json.Marshal(domain.Request{
		EngineName: "awap2024",
		NumPlayers: 3,
		Submissions: []domain.Submission{
			{Username: "test-a"}, {Username: "test-b"}, {Username: "test-c"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/match", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.RunMatch(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMatchHandler_SingleMatchCallback_InvalidMatchID(t *testing.T) {
	h := NewMatchHandler(nil, newActiveEngineRegistry(t), nil, nil, nil, testLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/single_match_callback/not-a-number", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("match_id", "not-a-number")
	req = withChiRouteContext(req, rctx)
	w := httptest.NewRecorder()

	h.SingleMatchCallback(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
