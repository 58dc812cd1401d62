package middleware

import "net/http"

// UserID extracts the caller identity from the X-User-Id header. The
// dashboard fronts its own auth; this service only scopes data by the
// forwarded user id.
func UserID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}
