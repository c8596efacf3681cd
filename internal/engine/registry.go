// Package engine holds the currently active game engine artifacts and map
// selection, and persists them so a restart can rebind without a fresh
// upload.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmstu-itstech/matchorch/internal/domain/match"
	"github.com/bmstu-itstech/matchorch/internal/infrastructure/cache"
	"github.com/bmstu-itstech/matchorch/internal/runner"
	apperrors "github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
)

const (
	persistentFilename = "engine-persistent.json"
	reloadLockKey       = "engine:reload"
	reloadLockTTL       = 30 * time.Second
)

// MapSelection holds the pools a map is drawn from for each match kind, plus
// the fixed per-round map order used by tournament series.
type MapSelection struct {
	UnrankedMaps    []string   `json:"unranked_maps"`
	RankedMaps      []string   `json:"ranked_maps"`
	TourneyMapOrder [][]string `json:"tourney_map_order"`
}

// Validate checks that every tournament round's map list has odd length, so
// a best-of-N series always has a majority winner.
func (m MapSelection) Validate() error {
	for i, layer := range m.TourneyMapOrder {
		if len(layer)%2 != 1 {
			return apperrors.ErrValidation.WithMessage(fmt.Sprintf("tournament round %d has an even number of maps", i))
		}
	}
	return nil
}

// Engine describes a game engine's artifacts and player count.
type Engine struct {
	Name                string       `json:"game_engine_name"`
	EngineFilename      string       `json:"engine_filename"`
	EngineDownloadURL   string       `json:"engine_download_url"`
	MakefileFilename    string       `json:"makefile_filename"`
	MakefileDownloadURL string       `json:"makefile_download_url"`
	NumPlayers          int          `json:"num_players"`
	MapChoice           MapSelection `json:"map_choice"`
}

type persistentState struct {
	EnginePath   string `json:"engine_path"`
	MakefilePath string `json:"makefile_path"`
	EngineDetails Engine `json:"engine_details"`
}

// Handle is the run-time reference to a staged engine artifact: its local
// path and its uploaded runner handle.
type Handle struct {
	LocalPath string
	Staged    runner.StagedFile
}

// Registry holds the single active engine, its staged file handles, and the
// currently effective map selection. Resets atomically on each upload;
// never partially updated.
type Registry struct {
	mu sync.RWMutex

	dataDir string
	lock    *cache.DistributedLock
	rc      *runner.Client
	log     *logger.Logger

	active       *Engine
	engineHandle Handle
	makefile     Handle
	maps         MapSelection
}

// New creates an empty registry. Call Reload or Upload before dispatching
// any match.
func New(dataDir string, lock *cache.DistributedLock, rc *runner.Client, log *logger.Logger) *Registry {
	return &Registry{dataDir: dataDir, lock: lock, rc: rc, log: log}
}

// Active returns the currently active engine, or ErrEngineMissing if none
// has been uploaded or reloaded yet.
func (r *Registry) Active() (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return Engine{}, apperrors.ErrEngineMissing
	}
	return *r.active, nil
}

// Handles returns the staged engine and makefile handles for the active
// engine.
func (r *Registry) Handles() (engineHandle, makefileHandle Handle, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return Handle{}, Handle{}, apperrors.ErrEngineMissing
	}
	return r.engineHandle, r.makefile, nil
}

// ChooseMap draws a random map for kind out of sel. Tournament matches
// choose per-round from TourneyMapOrder instead; this rejects that kind.
func (sel MapSelection) ChooseMap(kind match.Kind) (string, error) {
	var pool []string
	switch kind {
	case match.KindUnranked:
		pool = sel.UnrankedMaps
	case match.KindRanked:
		pool = sel.RankedMaps
	default:
		return "", apperrors.ErrValidation.WithMessage("tournament matches choose maps from tourney_map_order")
	}
	if len(pool) == 0 {
		return "", apperrors.ErrValidation.WithMessage("no maps configured for this match kind")
	}
	return pool[rand.Intn(len(pool))], nil
}

// ChooseMap draws a map for kind from the active map selection. Tournament
// matches choose per-round rather than here; callers should use
// TourneyMapOrder directly for those.
func (r *Registry) ChooseMap(kind match.Kind) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return "", apperrors.ErrEngineMissing
	}
	return r.maps.ChooseMap(kind)
}

// TourneyMapOrder returns the active engine's per-round tournament map
// sequence.
func (r *Registry) TourneyMapOrder() ([][]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return nil, apperrors.ErrEngineMissing
	}
	return r.maps.TourneyMapOrder, nil
}

// Snapshot is a point-in-time copy of the active engine, its staged runner
// handles, and its map selection. Orchestrators take one at batch start and
// carry it through the whole batch instead of re-reading the registry, so a
// concurrent Upload or Reload never changes the engine mid-batch.
type Snapshot struct {
	Engine       Engine
	EngineHandle Handle
	Makefile     Handle
}

// Snapshot captures the registry's current state for a batch. Returns
// ErrEngineMissing if no engine is active.
func (r *Registry) Snapshot() (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return Snapshot{}, apperrors.ErrEngineMissing
	}
	return Snapshot{Engine: *r.active, EngineHandle: r.engineHandle, Makefile: r.makefile}, nil
}

// Upload downloads the engine's artifacts, uploads them to the runner, and
// atomically replaces the active engine, then persists the new descriptor
// for Reload. The previous engine remains active if validation, a download
// or a runner upload fails; a persist failure is returned after the new
// engine has already become active.
func (r *Registry) Upload(ctx context.Context, e Engine) error {
	if err := e.MapChoice.Validate(); err != nil {
		return err
	}

	enginePath, err := r.downloadArtifact(ctx, e.EngineDownloadURL, e.EngineFilename)
	if err != nil {
		return err
	}
	makefilePath, err := r.downloadArtifact(ctx, e.MakefileDownloadURL, e.MakefileFilename)
	if err != nil {
		return err
	}

	engineFile, err := os.Open(enginePath)
	if err != nil {
		return apperrors.ErrRunnerIO.WithError(err)
	}
	defer engineFile.Close()
	engineStaged, err := r.rc.UploadFile(engineFile, e.EngineFilename, e.EngineFilename)
	if err != nil {
		return err
	}

	makefileFile, err := os.Open(makefilePath)
	if err != nil {
		return apperrors.ErrRunnerIO.WithError(err)
	}
	defer makefileFile.Close()
	makefileStaged, err := r.rc.UploadFile(makefileFile, "autograde-Makefile", "autograde-Makefile")
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.active = &e
	r.engineHandle = Handle{LocalPath: enginePath, Staged: engineStaged}
	r.makefile = Handle{LocalPath: makefilePath, Staged: makefileStaged}
	r.maps = e.MapChoice
	r.mu.Unlock()

	return r.persist(e, enginePath, makefilePath)
}

// Reload rebinds to the persisted engine descriptor, guarded by a
// distributed lock so concurrent reload requests don't race the
// read-modify-write of the in-memory state.
func (r *Registry) Reload(ctx context.Context) error {
	return r.lock.WithLock(ctx, reloadLockKey, reloadLockTTL, func(ctx context.Context) error {
		data, err := os.ReadFile(filepath.Join(r.dataDir, persistentFilename))
		if err != nil {
			return apperrors.ErrRunnerIO.WithError(fmt.Errorf("read persisted engine state: %w", err))
		}
		var state persistentState
		if err := json.Unmarshal(data, &state); err != nil {
			return apperrors.ErrRunnerIO.WithError(fmt.Errorf("decode persisted engine state: %w", err))
		}

		engineFile, err := os.Open(state.EnginePath)
		if err != nil {
			return apperrors.ErrRunnerIO.WithError(err)
		}
		defer engineFile.Close()
		engineStaged, err := r.rc.UploadFile(engineFile, state.EngineDetails.EngineFilename, state.EngineDetails.EngineFilename)
		if err != nil {
			return err
		}

		makefileFile, err := os.Open(state.MakefilePath)
		if err != nil {
			return apperrors.ErrRunnerIO.WithError(err)
		}
		defer makefileFile.Close()
		makefileStaged, err := r.rc.UploadFile(makefileFile, "autograde-Makefile", "autograde-Makefile")
		if err != nil {
			return err
		}

		r.mu.Lock()
		e := state.EngineDetails
		r.active = &e
		r.engineHandle = Handle{LocalPath: state.EnginePath, Staged: engineStaged}
		r.makefile = Handle{LocalPath: state.MakefilePath, Staged: makefileStaged}
		r.maps = e.MapChoice
		r.mu.Unlock()

		return nil
	})
}

func (r *Registry) persist(e Engine, enginePath, makefilePath string) error {
	state := persistentState{EnginePath: enginePath, MakefilePath: makefilePath, EngineDetails: e}
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.ErrRunnerIO.WithError(err)
	}
	if err := os.WriteFile(filepath.Join(r.dataDir, persistentFilename), data, 0o644); err != nil {
		return apperrors.ErrRunnerIO.WithError(err)
	}
	return nil
}

func (r *Registry) downloadArtifact(ctx context.Context, url, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperrors.ErrRunnerIO.WithError(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", apperrors.ErrRunnerTransport.WithError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", apperrors.ErrRunnerProtocol.WithError(fmt.Errorf("download %s: runner returned %d", filename, resp.StatusCode))
	}

	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return "", apperrors.ErrRunnerIO.WithError(err)
	}
	path := filepath.Join(r.dataDir, filename)
	dst, err := os.Create(path)
	if err != nil {
		return "", apperrors.ErrRunnerIO.WithError(err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return "", apperrors.ErrRunnerIO.WithError(err)
	}
	return path, nil
}
