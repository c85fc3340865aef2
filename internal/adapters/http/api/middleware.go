package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/pitchrank/pkg/metrics"
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
// Failures are labelled with the error code the handler wrote, so a 503 for
// a cohort that is still loading is told apart from one for a stopped
// service.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= http.StatusBadRequest {
			errorType := wrapped.errorCode
			if errorType == "" {
				errorType = errorTypeFor(wrapped.statusCode)
			}
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByType(errorType, severityFor(wrapped.statusCode, errorType))
			metrics.RecordErrorLatency("http", errorType, durationMs)
		}
	}
}

// errorTypeFor names failures written without an error body, such as
// the mux's own 404 and 405 responses.
func errorTypeFor(statusCode int) string {
	switch {
	case statusCode == http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	default:
		return "client_error"
	}
}

// severityFor ranks a failure. A loading cohort is expected right after
// startup; a failed fetch needs an operator.
func severityFor(statusCode int, errorType string) string {
	switch {
	case errorType == "unavailable":
		return "low"
	case errorType == "fetch_failed", statusCode >= http.StatusInternalServerError:
		return "high"
	default:
		return "medium"
	}
}

// errorCoder is implemented by writers that remember the code of the error
// body written through them.
type errorCoder interface {
	setErrorCode(code string)
}

// responseWriter wraps http.ResponseWriter to capture the status and error code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	errorCode  string
}

func (rw *responseWriter) setErrorCode(code string) { rw.errorCode = code }

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
