package httputils

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	assert "github.com/stretchr/testify/require"

	"mobileci/go/testutils"
)

func TestReadyHandleFunc(t *testing.T) {
	testutils.SmallTest(t)

	w := httptest.NewRecorder()
	ReadyHandleFunc(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestLoggingGzipRequestResponse(t *testing.T) {
	testutils.SmallTest(t)

	h := LoggingGzipRequestResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))

	// Without Accept-Encoding the body passes through untouched.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "payload", w.Body.String())

	// With Accept-Encoding: gzip the body is compressed.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	gz, err := gzip.NewReader(w.Body)
	assert.NoError(t, err)
	body, err := io.ReadAll(gz)
	assert.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestDefaultClientConfig(t *testing.T) {
	testutils.SmallTest(t)

	c := DefaultClientConfig()
	assert.NotNil(t, c)
	assert.NotZero(t, c.Timeout)
}
