package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opensnatch/snatchd/pkg/metrics"
)

// authMiddleware admits requests carrying the Bearer API key or a
// valid session cookie. When no API key is configured the surface is
// open; deployments are expected to front it with their own access
// control in that case.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") && strings.TrimPrefix(header, "Bearer ") == s.apiKey {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := s.sessionAlias(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "authentication required")
	})
}

// timeoutMiddleware bounds each request; a handler that overruns gets
// its context cancelled and the client a 504.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		tw := &timeoutWriter{inner: w}
		done := make(chan struct{})
		go func() {
			next.ServeHTTP(tw, r.WithContext(ctx))
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			if tw.markTimedOut() {
				writeError(w, http.StatusGatewayTimeout, "request timed out")
			}
			<-done
		}
	})
}

// timeoutWriter suppresses late handler writes once the deadline has
// produced a 504, so the response is never interleaved.
type timeoutWriter struct {
	inner http.ResponseWriter

	mu       sync.Mutex
	wrote    bool
	timedOut bool
}

func (w *timeoutWriter) Header() http.Header {
	return w.inner.Header()
}

func (w *timeoutWriter) WriteHeader(status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return
	}
	w.wrote = true
	w.inner.WriteHeader(status)
}

func (w *timeoutWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timedOut {
		return len(data), nil
	}
	w.wrote = true
	return w.inner.Write(data)
}

// markTimedOut flips the writer into discard mode; it reports whether
// the 504 may still be written.
func (w *timeoutWriter) markTimedOut() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timedOut = true
	return !w.wrote
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
