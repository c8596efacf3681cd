// Package tournament runs single-elimination bracket tournaments: seeding,
// bye padding, layered best-of-N series, and bracket document production.
package tournament

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bmstu-itstech/matchorch/internal/domain/counter"
	domain "github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/internal/engine"
	"github.com/bmstu-itstech/matchorch/internal/infrastructure/db"
	matchpkg "github.com/bmstu-itstech/matchorch/internal/match"
	"github.com/bmstu-itstech/matchorch/internal/storage"
	"github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"go.uber.org/zap"
)

// maxConcurrentPairings bounds how many pairings within one bracket layer
// run at once.
const maxConcurrentPairings = 16

// Request is the input to a tournament batch.
type Request struct {
	EngineName         string
	NumTournamentSpots int
	Submissions        []domain.Submission
}

// PairingRecord is one head-to-head slot in the persisted bracket document.
// Player2 is the literal "bye" when the slot was a bye.
type PairingRecord struct {
	Player1       string   `json:"player1"`
	Player2       string   `json:"player2"`
	OverallWinner string   `json:"overall_winner"`
	ReplayURLs    []string `json:"replay_urls"`
	MapWinners    []int    `json:"map_winners"`
}

// Round is one layer of the bracket.
type Round []PairingRecord

// BracketDocument is the full tournament record, round by round.
type BracketDocument []Round

// Orchestrator schedules and tracks in-flight tournaments. Each bracket's
// registry is keyed by tournament_id in batches so that an incoming
// tournament callback can be routed back to the pairing awaiting it.
type Orchestrator struct {
	counter *counter.Counter
	players *db.PlayerRepository
	matches *db.MatchRepository
	store   *storage.ObjectStore
	runner  *matchpkg.Runner
	log     *logger.Logger

	batches sync.Map // tournament_id uint64 -> *matchpkg.TournamentRegistry
}

// NewOrchestrator wires a tournament orchestrator.
func NewOrchestrator(c *counter.Counter, players *db.PlayerRepository, matches *db.MatchRepository, store *storage.ObjectStore, runner *matchpkg.Runner, log *logger.Logger) *Orchestrator {
	return &Orchestrator{counter: c, players: players, matches: matches, store: store, runner: runner, log: log}
}

// Start validates the request, allocates a tournament_id, and launches the
// bracket on a background goroutine. It returns immediately.
func (o *Orchestrator) Start(ctx context.Context, req Request, snap engine.Snapshot) (uint64, error) {
	if req.NumTournamentSpots < 1 {
		return 0, errors.ErrValidation.WithMessage("a tournament needs at least one spot")
	}
	if len(snap.Engine.MapChoice.TourneyMapOrder) == 0 {
		return 0, errors.ErrValidation.WithMessage("active engine has no tournament map order configured")
	}

	tournamentID := uint64(time.Now().UnixNano())
	registry := matchpkg.NewTournamentRegistry()
	o.batches.Store(tournamentID, registry)
	go o.run(tournamentID, req, snap, registry)
	return tournamentID, nil
}

// Deliver routes a tournament callback's result to the pairing it belongs
// to. It returns ErrNotFound if tournamentID names no in-flight bracket.
func (o *Orchestrator) Deliver(tournamentID, matchID uint64, winner storage.Winner, replayFilename string) error {
	v, ok := o.batches.Load(tournamentID)
	if !ok {
		return errors.ErrNotFound.WithMessage("no in-flight tournament with that id")
	}
	v.(*matchpkg.TournamentRegistry).Fire(matchID, winner, replayFilename)
	return nil
}

func (o *Orchestrator) run(tournamentID uint64, req Request, snap engine.Snapshot, registry *matchpkg.TournamentRegistry) {
	ctx := context.Background()
	defer o.batches.Delete(tournamentID)

	players, err := matchpkg.GetMatchPlayersInfo(ctx, o.players, req.Submissions, o.log)
	if err != nil {
		o.log.LogError("tournament failed to load player ratings", err, zap.Uint64("tournament_id", tournamentID))
		return
	}
	if len(players) > req.NumTournamentSpots {
		players = players[:req.NumTournamentSpots]
	}

	seeds := make([]*domain.Player, len(players))
	for i := range players {
		p := players[i]
		seeds[i] = &p
	}
	for !isPowerOfTwo(len(seeds)) {
		seeds = append(seeds, nil)
	}

	layer := seeds
	if len(seeds) > 1 {
		layer = interleave(seeds)
	}

	o.log.Info("running tournament", zap.Uint64("tournament_id", tournamentID), zap.Int("entrants", len(players)))

	var bracket BracketDocument
	layerIndex := 0
	for len(layer) > 1 {
		records, winners := o.runLayer(ctx, tournamentID, layerIndex, layer, snap, registry)
		bracket = append(bracket, records)

		if len(winners) > 1 {
			layer = interleave(winners)
		} else {
			layer = winners
		}
		layerIndex++
	}

	if err := o.store.UploadBracket(fmt.Sprintf("%d", tournamentID), bracket); err != nil {
		o.log.LogError("failed to upload tournament bracket", err, zap.Uint64("tournament_id", tournamentID))
	}
	registry.Clear()

	o.log.Info("tournament complete", zap.Uint64("tournament_id", tournamentID))
}

// runLayer dispatches every pairing in a bracket layer concurrently, bounded
// to maxConcurrentPairings in flight, and returns the layer's bracket
// records plus each pairing's winner in pairing order.
func (o *Orchestrator) runLayer(ctx context.Context, tournamentID uint64, layerIndex int, layer []*domain.Player, snap engine.Snapshot, registry *matchpkg.TournamentRegistry) ([]PairingRecord, []*domain.Player) {
	numPairs := len(layer) / 2
	records := make([]PairingRecord, numPairs)
	winners := make([]*domain.Player, numPairs)

	sem := make(chan struct{}, maxConcurrentPairings)
	var wg sync.WaitGroup
	for k := 0; k < numPairs; k++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(k int) {
			defer wg.Done()
			defer func() { <-sem }()
			record, winner := o.runPairing(ctx, tournamentID, layerIndex, layer[2*k], layer[2*k+1], snap, registry)
			records[k] = record
			winners[k] = winner
		}(k)
	}
	wg.Wait()

	return records, winners
}

// runPairing plays a bye immediately, or a best-of-N series sequentially
// (one map dispatched at a time, blocking on the previous map's callback),
// and returns the bracket record plus the pairing's winner.
func (o *Orchestrator) runPairing(ctx context.Context, tournamentID uint64, layerIndex int, player1, player2 *domain.Player, snap engine.Snapshot, registry *matchpkg.TournamentRegistry) (PairingRecord, *domain.Player) {
	if player1 == nil || player2 == nil {
		actual := player1
		if actual == nil {
			actual = player2
		}
		return PairingRecord{
			Player1:       actual.User.Username,
			Player2:       "bye",
			OverallWinner: actual.User.Username,
			ReplayURLs:    []string{},
			MapWinners:    []int{},
		}, actual
	}

	mapOrder := snap.Engine.MapChoice.TourneyMapOrder
	round := mapOrder[layerIndex%len(mapOrder)]
	requiredWins := len(round)/2 + 1

	player1Wins, player2Wins := 0, 0
	replayURLs := make([]string, 0, len(round))
	mapWinners := make([]int, 0, len(round))

	for mapIdx := 0; mapIdx < len(round) && player1Wins < requiredWins && player2Wins < requiredWins; mapIdx++ {
		mapName := round[mapIdx]
		matchID := o.counter.Next()
		pairing := registry.NewRegisteredPairing(matchID)

		jobReq := domain.Request{
			EngineName:  snap.Engine.Name,
			NumPlayers:  2,
			Submissions: []domain.Submission{player1.User, player2.User},
		}
		callbackSubpath := fmt.Sprintf("tournament_callback/%d", tournamentID)
		if _, err := o.runner.SendJob(ctx, matchID, jobReq, snap, domain.KindTournament, mapName, callbackSubpath); err != nil {
			o.log.LogError("failed to submit tournament map", err, zap.Uint64("match_id", matchID))
			replayURLs = append(replayURLs, "failed")
			mapWinners = append(mapWinners, -1)
			continue
		}

		result := pairing.AwaitResult()
		if result.Winner <= 0 {
			replayURLs = append(replayURLs, "failed")
			mapWinners = append(mapWinners, -1)
			if err := o.matches.UpdateFailed(ctx, matchID); err != nil {
				o.log.LogError("failed to record failed tournament match", err, zap.Uint64("match_id", matchID))
			}
			continue
		}

		mapWinner := 2
		outcome := domain.OutcomeTeam2
		if result.Winner == storage.WinnerRed {
			mapWinner = 1
			outcome = domain.OutcomeTeam1
			player1Wins++
		} else {
			player2Wins++
		}
		mapWinners = append(mapWinners, mapWinner)
		replayURL := o.store.GetReplayURL(result.ReplayFilename, 0)
		replayURLs = append(replayURLs, replayURL)

		rec := domain.Record{
			MatchID:        matchID,
			Outcome:        outcome,
			ReplayFilename: result.ReplayFilename,
			ReplayURL:      replayURL,
		}
		if err := o.matches.UpdateFinished(ctx, rec); err != nil {
			o.log.LogError("failed to record finished tournament match", err, zap.Uint64("match_id", matchID))
		}
	}

	winner, winnerName := player1, player1.User.Username
	if player2Wins > player1Wins {
		winner, winnerName = player2, player2.User.Username
	}

	return PairingRecord{
		Player1:       player1.User.Username,
		Player2:       player2.User.Username,
		OverallWinner: winnerName,
		ReplayURLs:    replayURLs,
		MapWinners:    mapWinners,
	}, winner
}

// interleave produces the standard 1-vs-last seeding order: for i in
// [0, n/2), players[i] then players[n-1-i]. Used both for the initial
// bracket layer and to reorder a completed layer's winners before they
// form the next layer.
func interleave(players []*domain.Player) []*domain.Player {
	n := len(players)
	out := make([]*domain.Player, 0, n)
	for i := 0; i < n/2; i++ {
		out = append(out, players[i], players[n-1-i])
	}
	return out
}

func isPowerOfTwo(n int) bool {
	return n != 0 && n&(n-1) == 0
}
