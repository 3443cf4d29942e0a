package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-chat-web/internal/auth"
	"go-chat-web/internal/chat"
)

const (
	SessionCookie = "chat_session"
	// SessionHeader names the page's own session on its htmx requests, so
	// tabs sharing a cookie jar keep separate state.
	SessionHeader = "X-Chat-Session"
	sessionParam  = "session"
)

type entry struct {
	session  *chat.Session
	viewerID string
	token    string
	lastSeen time.Time
}

// Registry maps the browser's session cookie to its chat session.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory func(auth.Viewer) *chat.Session
	ttl     time.Duration
	secure  bool
	now     func() time.Time
	log     logrus.FieldLogger
}

func NewRegistry(factory func(auth.Viewer) *chat.Session, ttl time.Duration, secure bool, log logrus.FieldLogger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		factory: factory,
		ttl:     ttl,
		secure:  secure,
		now:     time.Now,
		log:     log,
	}
}

// sessionID reads the header, then the query, then the cookie.
func sessionID(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	if id := r.URL.Query().Get(sessionParam); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Session returns the session the request names, starting a new one when
// there is none or it belongs to someone else. fresh is true for a new session.
func (g *Registry) Session(w http.ResponseWriter, r *http.Request, v auth.Viewer) (s *chat.Session, id string, fresh bool) {
	id = sessionID(r)

	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[id]; ok && e.viewerID == v.ID && e.token == v.Token {
		e.lastSeen = g.now()
		return e.session, id, false
	}
	if e, ok := g.entries[id]; ok && e.viewerID == v.ID {
		// same viewer with a refreshed token
		delete(g.entries, id)
	}
	s, id = g.startLocked(w, v)
	return s, id, true
}

// Start always opens a new session; every page load gets its own.
func (g *Registry) Start(w http.ResponseWriter, v auth.Viewer) (*chat.Session, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startLocked(w, v)
}

func (g *Registry) startLocked(w http.ResponseWriter, v auth.Viewer) (*chat.Session, string) {
	id := uuid.NewString()
	g.entries[id] = &entry{session: g.factory(v), viewerID: v.ID, token: v.Token, lastSeen: g.now()}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	g.log.WithFields(logrus.Fields{"viewer": v.ID, "session": id}).Info("session started")
	return g.entries[id].session, id
}

// Touch keeps a session alive while something long-lived, like the live feed, uses it.
func (g *Registry) Touch(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[id]; ok {
		e.lastSeen = g.now()
	}
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Sweep forgets sessions idle for longer than the ttl.
func (g *Registry) Sweep() int {
	cutoff := g.now().Add(-g.ttl)
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for id, e := range g.entries {
		if e.lastSeen.Before(cutoff) {
			delete(g.entries, id)
			n++
		}
	}
	return n
}

// Janitor sweeps every interval until ctx ends.
func (g *Registry) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Sweep(); n > 0 {
				g.log.WithField("expired", n).Info("sessions swept")
			}
		}
	}
}
