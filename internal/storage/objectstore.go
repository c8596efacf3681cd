// Package storage adapts match replays, bracket documents, and error logs
// onto a local object-storage layout, and parses runner replay output.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"go.uber.org/zap"
)

const defaultPresignTTL = 12 * time.Hour

// ObjectStore persists replay blobs, bracket documents, and error logs as
// files under named bucket subdirectories of a base path.
type ObjectStore struct {
	basePath         string
	replayBucket     string
	bracketBucket    string
	errorLogBucket   string
	publicURLPrefix  string
	log              *logger.Logger
}

// Config configures an ObjectStore.
type Config struct {
	BasePath        string
	ReplayBucket    string
	BracketBucket   string
	ErrorLogBucket  string
	PublicURLPrefix string
}

// New creates an ObjectStore, ensuring every configured bucket directory
// exists.
func New(cfg Config, log *logger.Logger) (*ObjectStore, error) {
	if cfg.BasePath == "" {
		cfg.BasePath = "/data/objects"
	}
	if cfg.ReplayBucket == "" {
		cfg.ReplayBucket = "replays"
	}
	if cfg.BracketBucket == "" {
		cfg.BracketBucket = "brackets"
	}
	if cfg.ErrorLogBucket == "" {
		cfg.ErrorLogBucket = "error-logs"
	}

	s := &ObjectStore{
		basePath:        cfg.BasePath,
		replayBucket:    cfg.ReplayBucket,
		bracketBucket:   cfg.BracketBucket,
		errorLogBucket:  cfg.ErrorLogBucket,
		publicURLPrefix: cfg.PublicURLPrefix,
		log:             log,
	}

	for _, bucket := range []string{s.replayBucket, s.bracketBucket, s.errorLogBucket} {
		if err := os.MkdirAll(filepath.Join(s.basePath, bucket), 0o755); err != nil {
			return nil, errors.ErrRunnerIO.WithError(fmt.Errorf("create bucket %s: %w", bucket, err))
		}
	}
	return s, nil
}

// UploadReplay writes raw replay bytes as dest_filename to the replay bucket.
func (s *ObjectStore) UploadReplay(destFilename string, data []byte) error {
	return s.put(s.replayBucket, destFilename, data)
}

// UploadErrorLog writes raw runner output to the error-log bucket for
// forensics on PARSE and FORFEIT outcomes.
func (s *ObjectStore) UploadErrorLog(destFilename string, data []byte) error {
	return s.put(s.errorLogBucket, destFilename, data)
}

// UploadBracket writes a tournament bracket document as JSON, named
// tournament_bracket-{id}.json, to the bracket bucket.
func (s *ObjectStore) UploadBracket(tournamentID string, document any) error {
	encoded, err := json.Marshal(document)
	if err != nil {
		return errors.ErrRunnerIO.WithError(fmt.Errorf("marshal bracket: %w", err))
	}
	name := fmt.Sprintf("tournament_bracket-%s.json", tournamentID)
	return s.put(s.bracketBucket, name, encoded)
}

func (s *ObjectStore) put(bucket, name string, data []byte) error {
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return errors.ErrValidation.WithMessage("object name must not contain path separators")
	}
	path := filepath.Join(s.basePath, bucket, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		if s.log != nil {
			s.log.LogError("object store write failed", err, zap.String("bucket", bucket), zap.String("name", name))
		}
		return errors.ErrRunnerIO.WithError(err)
	}
	return nil
}

// OpenSubmission opens a bot binary previously uploaded to an arbitrary
// bucket, identified the way a UserSubmission names it. Unlike the fixed
// replay/bracket/error-log buckets, submission buckets are caller-named, so
// this resolves directly under basePath rather than one of the configured
// bucket fields.
func (s *ObjectStore) OpenSubmission(bucket, objectKey string) (io.ReadCloser, error) {
	if strings.Contains(bucket, "..") || strings.ContainsAny(bucket, "/\\") {
		return nil, errors.ErrValidation.WithMessage("bucket name must not contain path separators")
	}
	if strings.Contains(objectKey, "..") || strings.ContainsAny(objectKey, "\\") {
		return nil, errors.ErrValidation.WithMessage("object key must not traverse directories")
	}
	f, err := os.Open(filepath.Join(s.basePath, bucket, objectKey))
	if err != nil {
		return nil, errors.ErrRunnerIO.WithError(err)
	}
	return f, nil
}

// GetReplayURL returns a presigned-style GET URL for a replay object, valid
// for ttl (defaultPresignTTL when zero).
func (s *ObjectStore) GetReplayURL(name string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s/%s/%s?expires=%d", s.publicURLPrefix, s.replayBucket, name, expires)
}

// ReplayPath returns the local filesystem path backing a replay object,
// for callers that need to stream it rather than resolve a URL.
func (s *ObjectStore) ReplayPath(name string) string {
	return filepath.Join(s.basePath, s.replayBucket, name)
}

// Winner identifies the side a completed match was decided in favor of.
type Winner int

const (
	// WinnerRed is team_1.
	WinnerRed Winner = 1
	// WinnerBlue is team_2.
	WinnerBlue Winner = 2
)

const (
	replayHeader = "====== BEGIN REPLAY HERE ======"
	redBroken    = "===== RED BROKEN ====="
	blueBroken   = "===== BLUE BROKEN ====="
)

type replayPayload struct {
	Winner string `json:"winner"`
}

// ProcessReplay decodes the runner's raw output, determines the winning
// side, and uploads the relevant bytes to the appropriate bucket: the
// replay line to the replay bucket on a clean result, or the full raw
// output to the error-log bucket on a forfeit or a parse failure.
func (s *ObjectStore) ProcessReplay(raw []byte, destFilename string) (winner Winner, err error) {
	defer func() {
		if appErr := errors.GetAppError(err); appErr != nil && appErr.Code == errors.ErrReplayParse.Code {
			if uerr := s.UploadErrorLog(destFilename, raw); uerr != nil && s.log != nil {
				s.log.LogError("failed to archive unparseable output", uerr)
			}
		}
	}()

	text := string(raw)
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		switch line {
		case redBroken:
			if err := s.UploadErrorLog(destFilename, raw); err != nil && s.log != nil {
				s.log.LogError("failed to archive forfeit output", err)
			}
			return WinnerBlue, nil
		case blueBroken:
			if err := s.UploadErrorLog(destFilename, raw); err != nil && s.log != nil {
				s.log.LogError("failed to archive forfeit output", err)
			}
			return WinnerRed, nil
		case replayHeader:
			if i+1 >= len(lines) {
				return 0, errors.ErrReplayParse.WithMessage("replay header has no following line")
			}
			return s.parseReplayLine(lines[i+1], destFilename, raw)
		}
	}

	return 0, errors.ErrReplayParse.WithMessage("no replay sentinel found")
}

func (s *ObjectStore) parseReplayLine(line, destFilename string, raw []byte) (Winner, error) {
	var payload replayPayload
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return 0, errors.ErrReplayParse.WithError(err)
	}

	var winner Winner
	switch payload.Winner {
	case "red":
		winner = WinnerRed
	case "blue":
		winner = WinnerBlue
	default:
		return 0, errors.ErrReplayParse.WithMessage(fmt.Sprintf("unrecognized winner %q", payload.Winner))
	}

	if err := s.UploadReplay(destFilename, []byte(line)); err != nil {
		return 0, err
	}
	return winner, nil
}

// ReadAll is a small convenience used by callback handlers to drain the
// runner's output body before handing bytes to ProcessReplay.
func ReadAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.ErrRunnerIO.WithError(err)
	}
	return data, nil
}
