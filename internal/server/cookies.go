package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CookieName is the name of the session cookie.
const CookieName = "audit_session"

// SetSessionCookie sets an HTTP-only session cookie that lives for ttl.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// getSessionID reads the session id from the cookie, then the X-Session-Id
// header. Values that are not UUIDs are ignored.
func getSessionID(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && validSessionID(c.Value) {
		return c.Value
	}
	if sid := r.Header.Get("X-Session-Id"); validSessionID(sid) {
		return sid
	}
	return ""
}

func validSessionID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func newSessionID() string {
	return uuid.NewString()
}
