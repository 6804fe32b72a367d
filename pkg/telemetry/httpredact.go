package telemetry

import "net/http"

// redactedHeaders is the fixed set of header names stripped from any HTTP
// request before telemetry logs about it, per SPEC_FULL.md §4.8. The
// actual outgoing request is untouched — only what the shim itself would
// otherwise log is redacted.
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
	"X-Api-Key":     true,
}

// SafeRequestSummary describes an HTTP request with every sensitive header
// and the full query string removed, suitable for passing to Logger.Info.
type SafeRequestSummary struct {
	Method string
	Host   string
	Path   string
}

// Summarize reduces req to a loggable summary: method, host, and path only
// — no headers, no query string, matching "strips ... all URL query
// strings from its own log emissions."
func Summarize(req *http.Request) SafeRequestSummary {
	return SafeRequestSummary{
		Method: req.Method,
		Host:   req.URL.Host,
		Path:   req.URL.Path,
	}
}

// RedactingTransport wraps an http.RoundTripper and logs a SafeRequestSummary
// for every request it makes, without ever logging headers or the query
// string. It does not alter the request sent on the wire.
type RedactingTransport struct {
	Next   http.RoundTripper
	Logger *Logger
}

// RoundTrip implements http.RoundTripper.
func (t *RedactingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	if t.Logger != nil {
		summary := Summarize(req)
		t.Logger.Info(req.Context(), "oracle_http_request", map[string]any{
			"method": summary.Method,
			"host":   summary.Host,
		})
	}
	return next.RoundTrip(req)
}

// isRedactedHeader reports whether header h must never be echoed in a log
// emission, case-insensitively per the canonical header name.
func isRedactedHeader(h string) bool {
	return redactedHeaders[http.CanonicalHeaderKey(h)]
}
