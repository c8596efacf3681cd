package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/internal/runner"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "json")
	require.NoError(t, err)
	return log
}

// newTestRegistry wires a registry against an httptest server that serves
// both artifact downloads and the runner's session/upload endpoints.
func newTestRegistry(t *testing.T) (*Registry, Engine) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/engine.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("engine-bytes"))
	})
	mux.HandleFunc("/Makefile", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("makefile-bytes"))
	})
	mux.HandleFunc("/open/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/upload/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	rc := runner.New(srv.URL, "testkey", srv.Client(), testLogger(t))
	reg := New(t.TempDir(), nil, rc, testLogger(t))

	e := Engine{
		Name:                "awap2024",
		EngineFilename:      "engine.zip",
		EngineDownloadURL:   srv.URL + "/engine.zip",
		MakefileFilename:    "Makefile",
		MakefileDownloadURL: srv.URL + "/Makefile",
		NumPlayers:          2,
		MapChoice: MapSelection{
			UnrankedMaps:    []string{"plains"},
			RankedMaps:      []string{"plains", "desert"},
			TourneyMapOrder: [][]string{{"plains"}, {"plains", "desert", "ocean"}},
		},
	}
	return reg, e
}

func TestMapSelection_Validate_RejectsEvenRound(t *testing.T) {
	m := MapSelection{TourneyMapOrder: [][]string{{"a", "b"}}}
	assert.Error(t, m.Validate())
}

func TestMapSelection_Validate_AcceptsOddRounds(t *testing.T) {
	m := MapSelection{TourneyMapOrder: [][]string{{"a"}, {"a", "b", "c"}}}
	assert.NoError(t, m.Validate())
}

func TestRegistry_Active_MissingBeforeUpload(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Active()
	assert.Error(t, err)
}

func TestRegistry_Upload_ActivatesEngine(t *testing.T) {
	reg, e := newTestRegistry(t)

	err := reg.Upload(context.Background(), e)
	require.NoError(t, err)

	active, err := reg.Active()
	require.NoError(t, err)
	assert.Equal(t, "awap2024", active.Name)
}

func TestRegistry_Upload_RejectsInvalidMapSelection(t *testing.T) {
	reg, e := newTestRegistry(t)
	e.MapChoice.TourneyMapOrder = [][]string{{"a", "b"}}

	err := reg.Upload(context.Background(), e)
	assert.Error(t, err)

	_, activeErr := reg.Active()
	assert.Error(t, activeErr, "a failed upload must not activate a partial engine")
}

func TestRegistry_ChooseMap_UnrankedAndRanked(t *testing.T) {
	reg, e := newTestRegistry(t)
	require.NoError(t, reg.Upload(context.Background(), e))

	m, err := reg.ChooseMap(match.KindUnranked)
	require.NoError(t, err)
	assert.Equal(t, "plains", m)

	m, err = reg.ChooseMap(match.KindRanked)
	require.NoError(t, err)
	assert.Contains(t, []string{"plains", "desert"}, m)
}

func TestRegistry_ChooseMap_TournamentUsesMapOrderInstead(t *testing.T) {
	reg, e := newTestRegistry(t)
	require.NoError(t, reg.Upload(context.Background(), e))

	_, err := reg.ChooseMap(match.KindTournament)
	assert.Error(t, err)
}

func TestRegistry_TourneyMapOrder_ReturnsActiveLayers(t *testing.T) {
	reg, e := newTestRegistry(t)
	require.NoError(t, reg.Upload(context.Background(), e))

	order, err := reg.TourneyMapOrder()
	require.NoError(t, err)
	assert.Len(t, order, 2)
}

func TestRegistry_Snapshot_CapturesEngineAndHandles(t *testing.T) {
	reg, e := newTestRegistry(t)
	require.NoError(t, reg.Upload(context.Background(), e))

	snap, err := reg.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "awap2024", snap.Engine.Name)
	assert.Equal(t, "engine.zip", snap.EngineHandle.Staged.DestFile)
	assert.Equal(t, "autograde-Makefile", snap.Makefile.Staged.DestFile)
}

func TestRegistry_Handles_ReturnsStagedFiles(t *testing.T) {
	reg, e := newTestRegistry(t)
	require.NoError(t, reg.Upload(context.Background(), e))

	engineHandle, makefileHandle, err := reg.Handles()
	require.NoError(t, err)
	assert.Equal(t, "engine.zip", engineHandle.Staged.DestFile)
	assert.Equal(t, "autograde-Makefile", makefileHandle.Staged.DestFile)
}
