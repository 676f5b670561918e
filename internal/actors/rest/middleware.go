package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tomasen/realip"
)

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-Id"

type contextKey string

const (
	requestIDKey contextKey = "requestId"
	claimsKey    contextKey = "claims"
)

// statusRecorder remembers the status code and the size of the response.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
	written    bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.written = true
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// clientIP is the best guess of the caller address, forwarding headers included. It is only
// trustworthy behind a proxy that overwrites those headers.
func clientIP(r *http.Request) string {
	return realip.FromRequest(r)
}

// remoteIP is the address of the peer connected to the server.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// logAccess assigns a request id and writes one access log line per request.
func logAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		entry := log.WithFields(log.Fields{
			"ip":          clientIP(r),
			"method":      r.Method,
			"path":        r.URL.Path,
			"proto":       r.Proto,
			"request-id":  id,
			"status":      rec.statusCode,
			"size":        rec.bytes,
			"duration-ms": float64(time.Since(start).Microseconds()) / 1000,
		})
		switch {
		case rec.statusCode >= http.StatusInternalServerError:
			entry.Error("access")
		case rec.statusCode >= http.StatusBadRequest:
			entry.Warn("access")
		default:
			entry.Info("access")
		}
	})
}

// recoverPanic turns a panic escaping the mux into an InternalError response.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		defer func() {
			if p := recover(); p != nil {
				err := panicError(r, p)
				if !rec.written {
					writeError(rec, r, err)
				}
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

func panicError(r *http.Request, p any) error {
	log.WithFields(log.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request-id": requestID(r.Context()),
		"stack":      string(debug.Stack()),
	}).Errorf("panic recovered: %v", p)
	return fmt.Errorf("panic: %v", p)
}
