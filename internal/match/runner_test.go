//go:build integration

package match_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/bmstu-itstech/matchorch/internal/config"
	domain "github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/internal/engine"
	"github.com/bmstu-itstech/matchorch/internal/infrastructure/db"
	matchpkg "github.com/bmstu-itstech/matchorch/internal/match"
	"github.com/bmstu-itstech/matchorch/internal/runner"
	"github.com/bmstu-itstech/matchorch/internal/storage"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"github.com/bmstu-itstech/matchorch/pkg/metrics"
)

type RunnerSuite struct {
	suite.Suite
	database      *db.DB
	matches       *db.MatchRepository
	players       *db.PlayerRepository
	store         *storage.ObjectStore
	storeBasePath string
	runnerSv      *httptest.Server
}

func TestRunnerSuite(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION") != "true" {
		t.Skip("Skipping integration tests. Set RUN_INTEGRATION=true to run.")
	}
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) SetupSuite() {
	log, err := logger.New("error", "json")
	require.NoError(s.T(), err)

	cfg := &config.DatabaseConfig{
		Host:           getEnv("DB_HOST", "localhost"),
		Port:           getEnvInt("DB_PORT", 5433),
		User:           getEnv("DB_USER", "matchorch"),
		Password:       getEnv("DB_PASSWORD", "secret"),
		Name:           getEnv("DB_NAME", "matchorch"),
		MaxConnections: 10,
		MaxIdle:        5,
		MaxLifetime:    5 * time.Minute,
	}
	database, err := db.New(cfg, log, metrics.New())
	require.NoError(s.T(), err)
	s.database = database
	s.matches = db.NewMatchRepository(database)
	s.players = db.NewPlayerRepository(database, nil)

	s.storeBasePath = s.T().TempDir()
	store, err := storage.New(storage.Config{BasePath: s.storeBasePath}, log)
	require.NoError(s.T(), err)
	s.store = store

	mux := http.NewServeMux()
	mux.HandleFunc("/upload/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/addJob/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jobId": 1}`))
	})
	s.runnerSv = httptest.NewServer(mux)
}

func (s *RunnerSuite) TearDownSuite() {
	if s.database != nil {
		_ = s.database.Close()
	}
	s.runnerSv.Close()
}

func (s *RunnerSuite) TearDownTest() {
	ctx := context.Background()
	_, _ = s.database.ExecContext(ctx, "DELETE FROM match WHERE team_1 LIKE 'test-%'")
	_, _ = s.database.ExecContext(ctx, "DELETE FROM player WHERE team_name LIKE 'test-%'")
}

func (s *RunnerSuite) TestSendJob_InsertsPendingAndSubmits() {
	ctx := context.Background()
	log, _ := logger.New("error", "json")
	rc := runner.New(s.runnerSv.URL, "testkey", s.runnerSv.Client(), log)

	submissionsDir := s.storeBasePath + "/submissions"
	require.NoError(s.T(), os.MkdirAll(submissionsDir, 0o755))
	require.NoError(s.T(), os.WriteFile(submissionsDir+"/a.py", []byte("bot a"), 0o644))
	require.NoError(s.T(), os.WriteFile(submissionsDir+"/b.py", []byte("bot b"), 0o644))

	r := matchpkg.NewRunner(s.matches, s.store, rc, s.T().TempDir(), s.runnerSv.URL, log)

	req := domain.Request{
		EngineName: "awap2024",
		NumPlayers: 2,
		Submissions: []domain.Submission{
			{Username: "test-alpha", Bucket: "submissions", ObjectKey: "a.py"},
			{Username: "test-beta", Bucket: "submissions", ObjectKey: "b.py"},
		},
	}
	snap := engine.Snapshot{
		EngineHandle: engine.Handle{Staged: runner.StagedFile{LocalFile: "engine.zip", DestFile: "engine.zip"}},
		Makefile:     engine.Handle{Staged: runner.StagedFile{LocalFile: "Makefile", DestFile: "autograde-Makefile"}},
	}

	ack, err := r.SendJob(ctx, 900101, req, snap, domain.KindUnranked, "plains", "single_match_callback")
	require.NoError(s.T(), err)
	var parsed map[string]any
	require.NoError(s.T(), json.Unmarshal(ack, &parsed))

	rec, err := s.matches.GetByID(ctx, 900101)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.StatusPending, rec.Status)
}

func (s *RunnerSuite) TestGetMatchPlayersInfo_SortsDescendingAndDropsMissing() {
	ctx := context.Background()
	log, _ := logger.New("error", "json")

	s.players.AdjustRatings(ctx, map[string]int{"test-low": 1000, "test-high": 1500})

	submissions := []domain.Submission{
		{Username: "test-low"},
		{Username: "test-high"},
		{Username: "test-missing"},
	}

	result, err := matchpkg.GetMatchPlayersInfo(ctx, s.players, submissions, log)
	require.NoError(s.T(), err)
	require.Len(s.T(), result, 2)
	assert.Equal(s.T(), "test-high", result[0].User.Username)
	assert.Equal(s.T(), "test-low", result[1].User.Username)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
