// Package scrimmage runs a ranked scrimmage batch: pairs submissions by
// rating proximity, dispatches every pairing concurrently, and applies the
// resulting Elo deltas once the whole batch has reported in.
package scrimmage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bmstu-itstech/matchorch/internal/domain/counter"
	"github.com/bmstu-itstech/matchorch/internal/domain/elo"
	domain "github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/internal/engine"
	"github.com/bmstu-itstech/matchorch/internal/infrastructure/db"
	matchpkg "github.com/bmstu-itstech/matchorch/internal/match"
	"github.com/bmstu-itstech/matchorch/internal/storage"
	"github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"go.uber.org/zap"
)

// NumMatches is the number of pairings each player participates in: half
// against higher-rated opponents, half against lower-rated ones. Must be
// even; Start rejects a batch with fewer entrants than NumMatches.
const NumMatches = 4

// Request is the input to a ranked scrimmage batch.
type Request struct {
	EngineName  string
	Submissions []domain.Submission
}

// Orchestrator schedules and tracks ranked-scrimmage batches. Each in-flight
// batch's registry is keyed by scrimmage_id in batches so that an incoming
// scrimmage callback can be routed back to the batch awaiting it.
type Orchestrator struct {
	counter *counter.Counter
	players *db.PlayerRepository
	matches *db.MatchRepository
	store   *storage.ObjectStore
	runner  *matchpkg.Runner
	log     *logger.Logger

	batches sync.Map // scrimmage_id uint64 -> *matchpkg.RankedRegistry
}

// NewOrchestrator wires a scrimmage orchestrator.
func NewOrchestrator(c *counter.Counter, players *db.PlayerRepository, matches *db.MatchRepository, store *storage.ObjectStore, runner *matchpkg.Runner, log *logger.Logger) *Orchestrator {
	return &Orchestrator{counter: c, players: players, matches: matches, store: store, runner: runner, log: log}
}

// Start validates the request, allocates a scrimmage_id, and launches the
// batch on a background goroutine. It returns immediately.
func (o *Orchestrator) Start(ctx context.Context, req Request, snap engine.Snapshot) (uint64, error) {
	if len(req.Submissions) < NumMatches {
		return 0, errors.ErrValidation.WithMessage("too few entrants to run a scrimmage batch")
	}

	scrimmageID := uint64(time.Now().UnixNano())
	registry := matchpkg.NewRankedRegistry()
	o.batches.Store(scrimmageID, registry)
	go o.run(scrimmageID, req, snap, registry)
	return scrimmageID, nil
}

// Deliver routes a scrimmage callback's result to the pairing it belongs to.
// It returns ErrNotFound if scrimmageID names no in-flight batch.
func (o *Orchestrator) Deliver(scrimmageID, matchID uint64, winner storage.Winner, replayFilename string) error {
	v, ok := o.batches.Load(scrimmageID)
	if !ok {
		return errors.ErrNotFound.WithMessage("no in-flight scrimmage batch with that id")
	}
	v.(*matchpkg.RankedRegistry).Fire(matchID, winner, replayFilename)
	return nil
}

func (o *Orchestrator) run(scrimmageID uint64, req Request, snap engine.Snapshot, registry *matchpkg.RankedRegistry) {
	ctx := context.Background()
	defer o.batches.Delete(scrimmageID)

	players, err := matchpkg.GetMatchPlayersInfo(ctx, o.players, req.Submissions, o.log)
	if err != nil {
		o.log.LogError("scrimmage batch failed to load player ratings", err, zap.Uint64("scrimmage_id", scrimmageID))
		return
	}

	pairings := buildPairings(players, NumMatches)
	o.log.Info("running ranked scrimmage batch",
		zap.Uint64("scrimmage_id", scrimmageID), zap.Int("entrants", len(players)), zap.Int("pairings", len(pairings)))

	netElo := make(map[string]int, len(players))
	for _, p := range players {
		netElo[p.User.Username] = 0
	}
	var netEloMu sync.Mutex

	for _, pair := range pairings {
		player1, player2 := pair[0], pair[1]
		matchID := o.counter.Next()

		mapName, err := snap.Engine.MapChoice.ChooseMap(domain.KindRanked)
		if err != nil {
			o.log.LogError("scrimmage pairing has no map available", err, zap.Uint64("match_id", matchID))
			continue
		}

		registry.Register(matchID, o.finalizeCallback(ctx, matchID, player1, player2, netElo, &netEloMu))

		jobReq := domain.Request{
			EngineName:  snap.Engine.Name,
			NumPlayers:  2,
			Submissions: []domain.Submission{player1.User, player2.User},
		}
		callbackSubpath := fmt.Sprintf("scrimmage_callback/%d", scrimmageID)
		if _, err := o.runner.SendJob(ctx, matchID, jobReq, snap, domain.KindRanked, mapName, callbackSubpath); err != nil {
			o.log.LogError("failed to submit scrimmage pairing", err, zap.Uint64("match_id", matchID))
			registry.Fire(matchID, 0, "")
		}
	}

	registry.Wait()

	finalRatings := make(map[string]int, len(players))
	for _, p := range players {
		netEloMu.Lock()
		delta := netElo[p.User.Username]
		netEloMu.Unlock()
		finalRatings[p.User.Username] = p.Rating + delta
	}
	o.players.AdjustRatings(ctx, finalRatings)

	o.log.Info("ranked scrimmage batch complete", zap.Uint64("scrimmage_id", scrimmageID))
}

// finalizeCallback builds the per-pairing ranked callback: it computes the
// Elo delta, folds it into the batch's shared net-change map, and writes
// the match's terminal DB row. player1 is always team_1/red, per the
// submission ordering SendJob was called with.
func (o *Orchestrator) finalizeCallback(ctx context.Context, matchID uint64, player1, player2 domain.Player, netElo map[string]int, netEloMu *sync.Mutex) matchpkg.RankedCallback {
	return func(winner storage.Winner, replayFilename string) {
		player1Won := winner == storage.WinnerRed
		delta1, delta2 := elo.Change(player1.Rating, player2.Rating, player1Won)

		netEloMu.Lock()
		netElo[player1.User.Username] += delta1
		netElo[player2.User.Username] += delta2
		netEloMu.Unlock()

		o.players.BumpRatingCache(ctx, player1.User.Username, delta1)
		o.players.BumpRatingCache(ctx, player2.User.Username, delta2)

		outcome := domain.OutcomeTeam2
		eloChange := delta2
		if player1Won {
			outcome = domain.OutcomeTeam1
			eloChange = delta1
		}
		if eloChange < 0 {
			eloChange = -eloChange
		}

		rec := domain.Record{
			MatchID:        matchID,
			Outcome:        outcome,
			ReplayFilename: replayFilename,
			ReplayURL:      o.store.GetReplayURL(replayFilename, 0),
			EloChange:      eloChange,
		}
		if err := o.matches.UpdateFinished(ctx, rec); err != nil {
			o.log.LogError("failed to record finished scrimmage match", err, zap.Uint64("match_id", matchID))
		}
	}
}

func buildPairings(players []domain.Player, k int) [][2]domain.Player {
	p := len(players)
	if p <= 1 {
		return nil
	}

	type pairKey struct{ lo, hi string }
	seen := make(map[pairKey]struct{})
	var pairings [][2]domain.Player

	upperBound := p - 1 - k
	for i, curr := range players {
		base := i - k/2
		if base < 0 {
			base = 0
		}
		if base > upperBound {
			base = upperBound
		}
		for j := base; j <= base+k; j++ {
			if j == i || j < 0 || j >= p {
				continue
			}
			opponent := players[j]

			lo, hi := curr, opponent
			if opponent.Rating < curr.Rating {
				lo, hi = opponent, curr
			}
			key := pairKey{lo.User.Username, hi.User.Username}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			pairings = append(pairings, [2]domain.Player{lo, hi})
		}
	}
	return pairings
}
