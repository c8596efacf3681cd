package match

import (
	"context"
	"sync"
	"time"

	"github.com/bmstu-itstech/matchorch/internal/infrastructure/db"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"go.uber.org/zap"
)

// WatchdogConfig controls the lost-callback sweep.
type WatchdogConfig struct {
	Enabled       bool
	SweepInterval time.Duration
	StaleAfter    time.Duration
}

// Watchdog periodically transitions matches stuck PENDING past StaleAfter
// to FAILED. A lost runner callback otherwise leaves a match non-terminal
// forever; the watchdog only bounds how long that lasts, it never touches
// a match's outcome.
type Watchdog struct {
	cfg     WatchdogConfig
	matches *db.MatchRepository
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatchdog wires a lost-callback watchdog.
func NewWatchdog(cfg WatchdogConfig, matches *db.MatchRepository, log *logger.Logger) *Watchdog {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watchdog{cfg: cfg, matches: matches, log: log, ctx: ctx, cancel: cancel}
}

// Start launches the sweep loop. A no-op if the watchdog is disabled.
func (w *Watchdog) Start() {
	if !w.cfg.Enabled {
		w.log.Info("lost-callback watchdog disabled")
		return
	}

	w.log.Info("starting lost-callback watchdog",
		zap.Duration("sweep_interval", w.cfg.SweepInterval),
		zap.Duration("stale_after", w.cfg.StaleAfter))

	w.wg.Add(1)
	go w.run()
}

// Stop cancels the sweep loop and waits for it to exit.
func (w *Watchdog) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *Watchdog) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Watchdog) sweep() {
	ctx, cancel := context.WithTimeout(w.ctx, 10*time.Second)
	defer cancel()

	ids, err := w.matches.FindStalePending(ctx, w.cfg.StaleAfter)
	if err != nil {
		w.log.LogError("watchdog sweep failed to query stale matches", err)
		return
	}

	for _, id := range ids {
		if err := w.matches.UpdateFailed(ctx, id); err != nil {
			w.log.LogError("watchdog failed to mark stale match failed", err, zap.Uint64("match_id", id))
			continue
		}
		w.log.Warn("watchdog marked stale pending match as failed", zap.Uint64("match_id", id))
	}
}
