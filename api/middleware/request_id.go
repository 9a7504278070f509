package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/logger"
)

const (
	requestIDHeader   = "X-Request-Id"
	traceparentHeader = "traceparent"
	maxRequestIDChars = 128
)

// RequestID tags the request with an id taken from X-Request-Id, else the
// trace id of a W3C traceparent, else a fresh uuid. The id is echoed back.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := printableID(r.Header.Get(requestIDHeader))
			if !ok {
				id, ok = traceIDOf(r.Header.Get(traceparentHeader))
			}
			if !ok {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			if logg != nil {
				r = r.WithContext(logg.WithRequestID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// printableID rejects ids that would log badly: empty, oversized, or holding
// anything outside visible ASCII.
func printableID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxRequestIDChars {
		return "", false
	}
	if strings.IndexFunc(id, func(c rune) bool { return c < '!' || c > '~' }) >= 0 {
		return "", false
	}
	return id, true
}

// traceIDOf extracts the trace id from "version-traceid-parentid-flags".
func traceIDOf(header string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return "", false
	}
	traceID := strings.ToLower(parts[1])
	if strings.Trim(traceID, "0123456789abcdef") != "" || strings.Trim(traceID, "0") == "" {
		return "", false
	}
	return traceID, true
}
