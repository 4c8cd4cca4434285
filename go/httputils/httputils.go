// Package httputils collects small HTTP server/client helpers shared by
// every binary in this repository: a healthz handler, a logging+gzip
// response wrapper, and a sane default outbound client.
package httputils

import (
	"compress/gzip"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mobileci/go/sklog"
)

// ReadyHandleFunc answers "ok" for health checks. It never reports not-ready;
// the process either accepts connections or it's dead.
func ReadyHandleFunc(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StartHealthzServer starts a minimal server exposing only /healthz on port,
// in its own goroutine. A blank port disables it.
func StartHealthzServer(port string) {
	if port == "" {
		return
	}
	r := chi.NewRouter()
	r.HandleFunc("/healthz", ReadyHandleFunc)
	go func() {
		sklog.Infof("Healthz server on %q", port)
		sklog.Fatal(http.ListenAndServe(port, r))
	}()
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type gzipResponseWriter struct {
	http.ResponseWriter
	gz *gzip.Writer
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.gz.Write(b)
}

// LoggingGzipRequestResponse wraps h so that every request is logged with
// its method, path, status, and latency, and the response body is
// transparently gzip-compressed when the client advertises support for it.
func LoggingGzipRequestResponse(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}

		var rw http.ResponseWriter = lw
		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			gz := gzip.NewWriter(w)
			defer func() { _ = gz.Close() }()
			w.Header().Set("Content-Encoding", "gzip")
			rw = &gzipResponseWriter{ResponseWriter: lw, gz: gz}
		}

		h.ServeHTTP(rw, r)
		sklog.Infof("%s %s %d %s", r.Method, r.URL.Path, lw.status, time.Since(start))
	})
}

// FastDialTimeout is a net.Dial replacement with a short connect timeout,
// used to build clients that fail fast against unresponsive hosts.
func FastDialTimeout(network, addr string) (net.Conn, error) {
	return net.DialTimeout(network, addr, 5*time.Second)
}

// DefaultClientConfig returns an *http.Client tuned for short-lived,
// same-host calls to external stage tooling (e.g. a local FVM/Gradle proxy),
// not for long-polling or large payload transfers.
func DefaultClientConfig() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			Dial:                FastDialTimeout,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
