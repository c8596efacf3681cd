package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmstu-itstech/matchorch/pkg/errors"
)

func newTestStore(t *testing.T) *ObjectStore {
	t.Helper()
	dir := t.TempDir()
	s, err := New(Config{BasePath: dir}, nil)
	require.NoError(t, err)
	return s
}

func TestProcessReplay_RedWins(t *testing.T) {
	s := newTestStore(t)
	raw := []byte("some log line\n" + replayHeader + "\n" + `{"winner":"red"}` + "\n")

	winner, err := s.ProcessReplay(raw, "match-1.json")

	require.NoError(t, err)
	assert.Equal(t, WinnerRed, winner)
	data, err := os.ReadFile(filepath.Join(s.basePath, s.replayBucket, "match-1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"winner":"red"}`, string(data))
}

func TestProcessReplay_BlueWins(t *testing.T) {
	s := newTestStore(t)
	raw := []byte(replayHeader + "\n" + `{"winner":"blue"}`)

	winner, err := s.ProcessReplay(raw, "match-2.json")

	require.NoError(t, err)
	assert.Equal(t, WinnerBlue, winner)
}

func TestProcessReplay_RedBrokenGivesBlueWin(t *testing.T) {
	s := newTestStore(t)
	raw := []byte("startup\n" + redBroken + "\ntraceback...")

	winner, err := s.ProcessReplay(raw, "match-3.json")

	require.NoError(t, err)
	assert.Equal(t, WinnerBlue, winner)
	_, statErr := os.Stat(filepath.Join(s.basePath, s.errorLogBucket, "match-3.json"))
	assert.NoError(t, statErr)
}

func TestProcessReplay_BlueBrokenGivesRedWin(t *testing.T) {
	s := newTestStore(t)
	raw := []byte(blueBroken + "\ntraceback...")

	winner, err := s.ProcessReplay(raw, "match-4.json")

	require.NoError(t, err)
	assert.Equal(t, WinnerRed, winner)
}

func TestProcessReplay_NoSentinelIsParseError(t *testing.T) {
	s := newTestStore(t)
	raw := []byte("nothing recognizable here")

	_, err := s.ProcessReplay(raw, "match-5.json")

	require.Error(t, err)
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrReplayParse.Code, appErr.Code)
}

func TestProcessReplay_BadWinnerValueIsParseError(t *testing.T) {
	s := newTestStore(t)
	raw := []byte(replayHeader + "\n" + `{"winner":"green"}`)

	_, err := s.ProcessReplay(raw, "match-6.json")

	require.Error(t, err)
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrReplayParse.Code, appErr.Code)
}

func TestUploadBracket_WritesJSON(t *testing.T) {
	s := newTestStore(t)

	err := s.UploadBracket("123", map[string]any{"rounds": []any{}})

	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(s.basePath, s.bracketBucket, "tournament_bracket-123.json"))
	assert.NoError(t, statErr)
}

func TestGetReplayURL_ContainsBucketAndName(t *testing.T) {
	s := newTestStore(t)

	url := s.GetReplayURL("match-1.json", 0)

	assert.Contains(t, url, s.replayBucket)
	assert.Contains(t, url, "match-1.json")
	assert.Contains(t, url, "expires=")
}

func TestOpenSubmission_ReadsFromArbitraryBucket(t *testing.T) {
	s := newTestStore(t)
	bucketDir := filepath.Join(s.basePath, "submissions")
	require.NoError(t, os.MkdirAll(bucketDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bucketDir, "alice-bot.py"), []byte("print('hi')"), 0o644))

	r, err := s.OpenSubmission("submissions", "alice-bot.py")
	require.NoError(t, err)
	defer r.Close()

	data, err := os.ReadFile(filepath.Join(bucketDir, "alice-bot.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(data))
}

func TestOpenSubmission_RejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)

	_, err := s.OpenSubmission("submissions", "../../etc/passwd")

	require.Error(t, err)
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrValidation.Code, appErr.Code)
}

func TestPut_RejectsPathTraversal(t *testing.T) {
	s := newTestStore(t)

	err := s.UploadReplay("../escape.json", []byte("x"))

	require.Error(t, err)
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrValidation.Code, appErr.Code)
}
