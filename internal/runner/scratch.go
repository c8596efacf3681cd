package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"go.uber.org/zap"
)

// ScratchDir is a per-match working directory used to materialize bot
// submissions and engine artifacts locally before they are uploaded to the
// runner. It is created on demand and must be released by the caller.
type ScratchDir struct {
	path string
	log  *logger.Logger
}

// NewScratchDir creates a fresh scratch directory under baseDir named for
// matchID.
func NewScratchDir(baseDir string, matchID uint64, log *logger.Logger) (*ScratchDir, error) {
	dir := filepath.Join(baseDir, fmt.Sprintf("match-%d", matchID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.ErrRunnerIO.WithError(fmt.Errorf("create scratch dir: %w", err))
	}
	return &ScratchDir{path: dir, log: log}, nil
}

// WriteFile materializes data as name inside the scratch directory and
// returns its local path.
func (s *ScratchDir) WriteFile(name string, data []byte) (string, error) {
	path := filepath.Join(s.path, sanitizeFilename(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.ErrRunnerIO.WithError(fmt.Errorf("write %s: %w", name, err))
	}
	return path, nil
}

// CopyFrom streams src into name inside the scratch directory and returns
// its local path, used to materialize a bot submission downloaded from
// object storage.
func (s *ScratchDir) CopyFrom(src io.Reader, name string) (string, error) {
	path := filepath.Join(s.path, sanitizeFilename(name))
	dst, err := os.Create(path)
	if err != nil {
		return "", errors.ErrRunnerIO.WithError(fmt.Errorf("create %s: %w", name, err))
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", errors.ErrRunnerIO.WithError(fmt.Errorf("copy %s: %w", name, err))
	}
	return path, nil
}

// Open opens a previously written scratch file for upload to the runner.
func (s *ScratchDir) Open(name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(s.path, sanitizeFilename(name)))
	if err != nil {
		return nil, errors.ErrRunnerIO.WithError(err)
	}
	return f, nil
}

// Release removes the scratch directory and everything under it. Callers
// must invoke this on every exit path, success or failure.
func (s *ScratchDir) Release() {
	if err := os.RemoveAll(s.path); err != nil && s.log != nil {
		s.log.LogError("failed to release scratch directory", err, zap.String("path", s.path))
	}
}

// sanitizeFilename strips any directory component and neutralizes path
// separators so a submission's declared filename can't escape the scratch
// directory.
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	replacer := strings.NewReplacer(
		"..", "_",
		"/", "_",
		"\\", "_",
		"\x00", "_",
		" ", "_",
	)
	return replacer.Replace(filename)
}
