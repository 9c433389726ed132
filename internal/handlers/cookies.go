package handlers

import (
	"net/http"

	"github.com/bobmcallan/lingqian/internal/session"
)

// SessionResolver maps requests to sessions through the session cookie.
type SessionResolver struct {
	sessions *session.Manager
	secure   bool
}

// NewSessionResolver creates a resolver. secure sets the Secure cookie flag.
func NewSessionResolver(sessions *session.Manager, secure bool) *SessionResolver {
	return &SessionResolver{sessions: sessions, secure: secure}
}

// Resolve returns the request's session, starting a new one and setting the
// cookie when the cookie is missing or names an unknown session.
func (sr *SessionResolver) Resolve(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(session.CookieName); err == nil {
		id = c.Value
	}

	s, created := sr.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    s.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   sr.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return s
}

// End deletes the request's session, if any, and expires the cookie.
func (sr *SessionResolver) End(w http.ResponseWriter, r *http.Request) bool {
	sr.Clear(w)
	c, err := r.Cookie(session.CookieName)
	if err != nil || c.Value == "" {
		return false
	}
	return sr.sessions.Delete(c.Value)
}

// Clear expires the session cookie.
func (sr *SessionResolver) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sr.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
