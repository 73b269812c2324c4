package httpapi

import (
	"log/slog"
	"net/http"
	"time"
)

// pollPaths are scraped on a timer; logging them at info would drown the
// beacon admin requests.
var pollPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// responseRecorder keeps what the access log needs. A handler that never
// calls WriteHeader is recorded as 200 on its first Write.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

func (rr *responseRecorder) code() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

func accessLevel(r *http.Request, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelWarn
	case pollPaths[r.URL.Path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// requestLogger writes one access line per admin request. The route is the
// matched mux pattern so beacon addresses stay out of the grouping key.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rr, r)

		status := rr.code()
		logger.Log(r.Context(), accessLevel(r, status), "admin request",
			"method", r.Method,
			"route", r.Pattern,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", status,
			"bytes", rr.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
