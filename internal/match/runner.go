// Package match orchestrates a single job end to end: staging a match's
// bot submissions, handing them to the external runner, and tracking the
// ongoing-match registrations that the ranked and tournament orchestrators
// wait on.
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	domain "github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/internal/engine"
	"github.com/bmstu-itstech/matchorch/internal/infrastructure/db"
	"github.com/bmstu-itstech/matchorch/internal/runner"
	"github.com/bmstu-itstech/matchorch/internal/storage"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"go.uber.org/zap"
)

// Runner materializes one match's submissions, stages them with the engine
// and makefile, submits the job to the external runner, and records the
// PENDING MatchRecord.
type Runner struct {
	matches         *db.MatchRepository
	store           *storage.ObjectStore
	rc              *runner.Client
	scratchBaseDir  string
	callbackBaseURL string
	log             *logger.Logger
}

// NewRunner creates a match runner. callbackBaseURL is this service's own
// externally reachable address, e.g. "http://localhost:8080".
func NewRunner(matches *db.MatchRepository, store *storage.ObjectStore, rc *runner.Client, scratchBaseDir, callbackBaseURL string, log *logger.Logger) *Runner {
	return &Runner{
		matches:         matches,
		store:           store,
		rc:              rc,
		scratchBaseDir:  scratchBaseDir,
		callbackBaseURL: callbackBaseURL,
		log:             log,
	}
}

type jobConfig struct {
	Map     string `json:"map"`
	RedBot  string `json:"red_bot"`
	BlueBot string `json:"blue_bot"`
}

// SendJob materializes req's submissions, stages everything the runner
// needs, inserts a PENDING MatchRecord, and submits the job. The scratch
// directory is released on every exit path.
func (r *Runner) SendJob(ctx context.Context, matchID uint64, req domain.Request, eng engine.Snapshot, kind domain.Kind, mapName, callbackSubpath string) (json.RawMessage, error) {
	scratch, err := runner.NewScratchDir(r.scratchBaseDir, matchID, r.log)
	if err != nil {
		return nil, err
	}
	defer scratch.Release()

	files := []runner.StagedFile{eng.EngineHandle.Staged, eng.Makefile.Staged}

	for i, submission := range req.Submissions {
		teamFile := fmt.Sprintf("team%d.py", i+1)

		src, err := r.store.OpenSubmission(submission.Bucket, submission.ObjectKey)
		if err != nil {
			return nil, err
		}
		_, err = scratch.CopyFrom(src, teamFile)
		src.Close()
		if err != nil {
			return nil, err
		}

		f, err := scratch.Open(teamFile)
		if err != nil {
			return nil, err
		}
		staged, err := r.rc.UploadMatchFile(f, matchID, teamFile)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, staged)
	}

	cfg := jobConfig{Map: mapName, RedBot: "team1", BlueBot: "team2"}
	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := scratch.WriteFile("config.json", cfgBytes); err != nil {
		return nil, err
	}
	cfgFile, err := scratch.Open("config.json")
	if err != nil {
		return nil, err
	}
	cfgStaged, err := r.rc.UploadMatchFile(cfgFile, matchID, "config.json")
	cfgFile.Close()
	if err != nil {
		return nil, err
	}
	files = append(files, cfgStaged)

	team1, team2 := req.Submissions[0].Username, ""
	if len(req.Submissions) > 1 {
		team2 = req.Submissions[1].Username
	}
	if err := r.matches.InsertPending(ctx, domain.NewPendingRecord(matchID, team1, team2, kind, mapName)); err != nil {
		return nil, err
	}

	callbackURL := fmt.Sprintf("%s/%s/%d", r.callbackBaseURL, callbackSubpath, matchID)
	outputFile := fmt.Sprintf("output-%d.json", matchID)

	r.log.Info("submitting match job",
		zap.Uint64("match_id", matchID), zap.String("kind", string(kind)), zap.String("map", mapName))

	return r.rc.AddJob(strconv.FormatUint(matchID, 10), files, outputFile, callbackURL)
}

// GetMatchPlayersInfo fetches the current rating for each submission,
// silently dropping (and logging) any username with no rating row, and
// returns the result sorted by rating descending.
func GetMatchPlayersInfo(ctx context.Context, players *db.PlayerRepository, submissions []domain.Submission, log *logger.Logger) ([]domain.Player, error) {
	usernames := make([]string, len(submissions))
	for i, s := range submissions {
		usernames[i] = s.Username
	}

	ratings, err := players.GetRatings(ctx, usernames)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Player, 0, len(submissions))
	for _, s := range submissions {
		rating, ok := ratings[s.Username]
		if !ok {
			if log != nil {
				log.Warn("rating info could not be found", zap.String("username", s.Username))
			}
			continue
		}
		result = append(result, domain.Player{User: s, Rating: rating})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Rating > result[j].Rating })
	return result, nil
}
