// Package runner adapts match jobs to the external job-runner's wire
// protocol: session open, file upload, job submission.
package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/bmstu-itstech/matchorch/pkg/errors"
	"github.com/bmstu-itstech/matchorch/pkg/logger"
	"go.uber.org/zap"
)

const courselab = "awap"

// StagedFile is one file already uploaded to the runner, ready to be
// referenced in a job submission.
type StagedFile struct {
	LocalFile string `json:"localFile"`
	DestFile  string `json:"destFile"`
}

// JobRequest is the body of an addJob call.
type JobRequest struct {
	Image       string       `json:"image"`
	JobName     string       `json:"jobName"`
	Files       []StagedFile `json:"files"`
	OutputFile  string       `json:"output_file"`
	CallbackURL string       `json:"callback_url"`
	Timeout     int          `json:"timeout"`
}

// Client talks to an external job runner over its session/upload/addJob
// HTTP contract.
type Client struct {
	host       string
	key        string
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a runner client bound to a runner instance identified by host
// and session key.
func New(host, key string, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{host: host, key: key, httpClient: httpClient, log: log}
}

// OpenSession opens a runner session for this client's key, as required
// before any upload or job submission.
func (c *Client) OpenSession() error {
	url := fmt.Sprintf("%s/open/%s/%s/", c.host, c.key, courselab)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return apperrors.ErrRunnerTransport.WithError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return apperrors.ErrRunnerProtocol.WithError(fmt.Errorf("open session: runner returned %d", resp.StatusCode))
	}
	return nil
}

// UploadFile streams the contents of a reader to the runner, staging it
// under tangoName (the name visible in the runner's shared upload
// namespace) for later reference as destName in a job submission. Callers
// that upload on a per-match basis must disambiguate tangoName themselves
// (e.g. by prefixing it with the match ID) so concurrently-submitted
// matches uploading same-named files (team1.py, config.json) don't
// collide.
func (c *Client) UploadFile(body io.Reader, tangoName, destName string) (StagedFile, error) {
	url := fmt.Sprintf("%s/upload/%s/%s/", c.host, c.key, courselab)
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return StagedFile{}, apperrors.ErrRunnerIO.WithError(err)
	}
	req.Header.Set("filename", tangoName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StagedFile{}, apperrors.ErrRunnerTransport.WithError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return StagedFile{}, apperrors.ErrRunnerProtocol.WithError(fmt.Errorf("upload %s: runner returned %d", tangoName, resp.StatusCode))
	}
	return StagedFile{LocalFile: tangoName, DestFile: destName}, nil
}

// UploadMatchFile is UploadFile for files staged on behalf of a specific
// match: the runner-visible tangoName is destName prefixed with matchID
// ("{matchID}-{destName}") while destName itself stays plain, the way the
// reference match runner's uploadFile helper does, so two matches
// dispatched concurrently never overwrite each other's same-named staged
// files.
func (c *Client) UploadMatchFile(body io.Reader, matchID uint64, destName string) (StagedFile, error) {
	tangoName := fmt.Sprintf("%d-%s", matchID, destName)
	return c.UploadFile(body, tangoName, destName)
}

// AddJob submits a job to the runner. It returns the runner's raw
// acknowledgement body, unparsed, since the service does not act on its
// contents and only hands it back to its own caller.
func (c *Client) AddJob(jobName string, files []StagedFile, outputFile, callbackURL string) (json.RawMessage, error) {
	reqBody := JobRequest{
		Image:       "awap_image",
		JobName:     jobName,
		Files:       files,
		OutputFile:  outputFile,
		CallbackURL: callbackURL,
		Timeout:     30,
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperrors.ErrRunnerIO.WithError(err)
	}

	url := fmt.Sprintf("%s/addJob/%s/%s/", c.host, c.key, courselab)
	resp, err := c.httpClient.Post(url, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return nil, apperrors.ErrRunnerTransport.WithError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ErrRunnerIO.WithError(err)
	}

	if resp.StatusCode/100 != 2 {
		if c.log != nil {
			c.log.Warn("runner rejected job", zap.String("job", jobName))
		}
		return nil, apperrors.ErrRunnerProtocol.WithError(fmt.Errorf("add job %s: runner returned %d", jobName, resp.StatusCode))
	}
	return json.RawMessage(respBody), nil
}
