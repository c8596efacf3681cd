package runner

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bmstu-itstech/matchorch/pkg/errors"
)

func TestOpenSession_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/open/key1/awap/", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", srv.Client(), nil)
	err := c.OpenSession()

	require.NoError(t, err)
}

func TestOpenSession_TransportError(t *testing.T) {
	c := New("http://127.0.0.1:0", "key1", srvClientWithNoRoute(), nil)
	err := c.OpenSession()

	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrRunnerTransport.Code, appErr.Code)
}

func TestOpenSession_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", srv.Client(), nil)
	err := c.OpenSession()

	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrRunnerProtocol.Code, appErr.Code)
}

func TestUploadFile_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/key1/awap/", r.URL.Path)
		assert.Equal(t, "autograde-Makefile", r.Header.Get("filename"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", srv.Client(), nil)
	staged, err := c.UploadFile(strings.NewReader("all:"), "autograde-Makefile", "autograde-Makefile")

	require.NoError(t, err)
	assert.Equal(t, "autograde-Makefile", staged.LocalFile)
	assert.Equal(t, "autograde-Makefile", staged.DestFile)
}

func TestUploadMatchFile_PrefixesWithMatchID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/key1/awap/", r.URL.Path)
		assert.Equal(t, "42-team1.py", r.Header.Get("filename"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", srv.Client(), nil)
	staged, err := c.UploadMatchFile(strings.NewReader("print('hi')"), 42, "team1.py")

	require.NoError(t, err)
	assert.Equal(t, "42-team1.py", staged.LocalFile)
	assert.Equal(t, "team1.py", staged.DestFile)
}

func TestAddJob_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addJob/key1/awap/", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ack":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", srv.Client(), nil)
	ack, err := c.AddJob("123", []StagedFile{{LocalFile: "team1.py", DestFile: "team1.py"}}, "output-123.json", "http://callback/123")

	require.NoError(t, err)
	assert.JSONEq(t, `{"ack":true}`, string(ack))
}

func TestAddJob_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", srv.Client(), nil)
	_, err := c.AddJob("123", nil, "output-123.json", "http://callback/123")

	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrRunnerProtocol.Code, appErr.Code)
}

func srvClientWithNoRoute() *http.Client {
	return &http.Client{Transport: failingTransport{}}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(_ *http.Request) (*http.Response, error) {
	return nil, assertErr{}
}

type assertErr struct{}

func (assertErr) Error() string { return "connection refused" }
