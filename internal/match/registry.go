package match

import (
	"sync"

	"github.com/bmstu-itstech/matchorch/internal/storage"
)

// RankedCallback receives a ranked match's outcome once its callback
// arrives. It is only invoked for a successful match (winner > 0).
type RankedCallback func(winner storage.Winner, replayFilename string)

// RankedRegistry tracks the matches dispatched in one ranked-scrimmage
// batch. Fire both delivers the outcome and counts the match as done,
// regardless of success, so the orchestrator's Wait unblocks once every
// dispatched match has reported in.
type RankedRegistry struct {
	mu        sync.Mutex
	callbacks map[uint64]RankedCallback
	wg        sync.WaitGroup
}

// NewRankedRegistry creates an empty ranked registry for one batch.
func NewRankedRegistry() *RankedRegistry {
	return &RankedRegistry{callbacks: make(map[uint64]RankedCallback)}
}

// Register records matchID's completion callback and adds it to the
// batch's completion barrier. Must be called before the match is
// dispatched to the runner, never concurrently with Fire for the same id.
func (r *RankedRegistry) Register(matchID uint64, cb RankedCallback) {
	r.wg.Add(1)
	r.mu.Lock()
	r.callbacks[matchID] = cb
	r.mu.Unlock()
}

// Fire looks up matchID's callback and invokes it if the match succeeded.
// A winner of 0 (or an unrecognized id) contributes no callback but still
// releases the batch barrier for this match.
func (r *RankedRegistry) Fire(matchID uint64, winner storage.Winner, replayFilename string) {
	defer r.wg.Done()

	r.mu.Lock()
	cb, ok := r.callbacks[matchID]
	r.mu.Unlock()
	if !ok || winner <= 0 {
		return
	}
	cb(winner, replayFilename)
}

// Wait blocks until every match registered in this batch has fired.
func (r *RankedRegistry) Wait() {
	r.wg.Wait()
}

// PairingResult is one map's outcome within a tournament series.
type PairingResult struct {
	Winner         storage.Winner
	ReplayFilename string
}

// Pairing is a single head-to-head slot in a tournament bracket. Maps
// within the series are dispatched one at a time; AwaitResult blocks the
// orchestrator until the dispatched map's callback delivers a result,
// replacing a poll loop with a direct handoff.
type Pairing struct {
	resultCh chan PairingResult
}

func newPairing() *Pairing {
	return &Pairing{resultCh: make(chan PairingResult, 1)}
}

// AwaitResult blocks for the next map dispatched against this pairing.
func (p *Pairing) AwaitResult() PairingResult {
	return <-p.resultCh
}

// Deliver hands a map's result to whichever goroutine is waiting on this
// pairing.
func (p *Pairing) Deliver(result PairingResult) {
	p.resultCh <- result
}

// TournamentRegistry tracks the in-flight pairings of one tournament
// batch, keyed by the match_id of whichever map is currently dispatched
// for that pairing.
type TournamentRegistry struct {
	mu       sync.Mutex
	pairings map[uint64]*Pairing
}

// NewTournamentRegistry creates an empty tournament registry for one batch.
func NewTournamentRegistry() *TournamentRegistry {
	return &TournamentRegistry{pairings: make(map[uint64]*Pairing)}
}

// Register binds matchID to pairing for the duration of one dispatched
// map. Call again with a new matchID before dispatching the series'
// next map.
func (t *TournamentRegistry) Register(matchID uint64, pairing *Pairing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pairings[matchID] = pairing
}

// NewRegisteredPairing allocates a fresh pairing and registers it under
// matchID in one step.
func (t *TournamentRegistry) NewRegisteredPairing(matchID uint64) *Pairing {
	p := newPairing()
	t.Register(matchID, p)
	return p
}

// Fire delivers a map's result to its pairing, if still registered.
func (t *TournamentRegistry) Fire(matchID uint64, winner storage.Winner, replayFilename string) {
	t.mu.Lock()
	p, ok := t.pairings[matchID]
	t.mu.Unlock()
	if !ok {
		return
	}
	p.Deliver(PairingResult{Winner: winner, ReplayFilename: replayFilename})
}

// Clear drops every pairing, releasing the batch's state once the
// tournament has finished.
func (t *TournamentRegistry) Clear() {
	t.mu.Lock()
	t.pairings = make(map[uint64]*Pairing)
	t.mu.Unlock()
}
