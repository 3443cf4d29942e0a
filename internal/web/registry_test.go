package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"go-chat-web/internal/auth"
	"go-chat-web/internal/chat"
	"go-chat-web/internal/render"
)

func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	factory := func(v auth.Viewer) *chat.Session {
		return chat.NewSession(nil, render.New(v.ID, render.Options{}), chat.Options{Logger: logger})
	}
	g := NewRegistry(factory, time.Minute, false, logger)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, &now
}

func sessionRequest(cookie string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != "" {
		r.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookie})
	}
	return r
}

func TestRegistryReusesAndIsolates(t *testing.T) {
	g, _ := newTestRegistry(t)
	ann := auth.Viewer{ID: "u1", Token: "t1"}

	first, id, fresh := g.Session(httptest.NewRecorder(), sessionRequest(""), ann)
	if !fresh || id == "" {
		t.Fatalf("first session fresh=%v id=%q", fresh, id)
	}
	again, id2, fresh := g.Session(httptest.NewRecorder(), sessionRequest(id), ann)
	if fresh || again != first || id2 != id {
		t.Error("same cookie and viewer should reuse the session")
	}

	// someone else presenting the cookie gets their own session
	other, id3, fresh := g.Session(httptest.NewRecorder(), sessionRequest(id), auth.Viewer{ID: "u2", Token: "t2"})
	if !fresh || other == first || id3 == id {
		t.Error("another viewer must not share the session")
	}
	if g.Len() != 2 {
		t.Errorf("len = %d, want 2", g.Len())
	}

	// a refreshed token replaces the viewer's session
	_, id4, fresh := g.Session(httptest.NewRecorder(), sessionRequest(id), auth.Viewer{ID: "u1", Token: "t1b"})
	if !fresh || id4 == id {
		t.Error("new token should start a new session")
	}
	if g.Len() != 2 {
		t.Errorf("len = %d, want 2 after token refresh", g.Len())
	}
}

func TestRegistrySweep(t *testing.T) {
	g, now := newTestRegistry(t)
	_, idle, _ := g.Session(httptest.NewRecorder(), sessionRequest(""), auth.Viewer{ID: "u1", Token: "t"})
	_, kept, _ := g.Session(httptest.NewRecorder(), sessionRequest(""), auth.Viewer{ID: "u2", Token: "t"})

	*now = now.Add(50 * time.Second)
	g.Touch(kept)
	*now = now.Add(30 * time.Second)

	if n := g.Sweep(); n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	_, id, fresh := g.Session(httptest.NewRecorder(), sessionRequest(idle), auth.Viewer{ID: "u1", Token: "t"})
	if !fresh || id == idle {
		t.Error("swept session should not come back")
	}
}

func TestRegistryPrefersPageSession(t *testing.T) {
	g, _ := newTestRegistry(t)
	ann := auth.Viewer{ID: "u1", Token: "t1"}
	tab1, id1 := g.Start(httptest.NewRecorder(), ann)
	tab2, id2 := g.Start(httptest.NewRecorder(), ann)
	if tab1 == tab2 || id1 == id2 {
		t.Fatal("each Start should open its own session")
	}

	// the cookie names the latest tab; the header and query win over it
	r := sessionRequest(id2)
	r.Header.Set(SessionHeader, id1)
	if s, _, fresh := g.Session(httptest.NewRecorder(), r, ann); fresh || s != tab1 {
		t.Error("header should select the first tab")
	}
	r = httptest.NewRequest(http.MethodGet, "/live?session="+id1, nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: id2})
	if s, _, fresh := g.Session(httptest.NewRecorder(), r, ann); fresh || s != tab1 {
		t.Error("query should select the first tab")
	}
	if s, _, fresh := g.Session(httptest.NewRecorder(), sessionRequest(id2), ann); fresh || s != tab2 {
		t.Error("cookie alone should select the second tab")
	}
}
