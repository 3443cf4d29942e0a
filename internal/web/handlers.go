package web

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"go-chat-web/internal/api"
	"go-chat-web/internal/auth"
	"go-chat-web/internal/chat"
	"go-chat-web/internal/live"
	"go-chat-web/internal/render"
)

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*chat.Session, auth.Viewer) {
	v, _ := auth.ViewerFrom(r.Context())
	sess, id, fresh := s.sessions.Session(w, r, v)
	if fresh {
		// an expired or unknown session still needs names for headers and dialogs
		if err := sess.Bootstrap(r.Context(), &chat.Recorder{}); err != nil {
			s.log.WithError(err).WithField("session", id).Warn("could not warm new session")
		}
	}
	return sess, v
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	v, _ := auth.ViewerFrom(r.Context())
	sess, id := s.sessions.Start(w, v)

	// a full load shows a current directory
	if s.directory != nil {
		if err := s.directory.Invalidate(r.Context(), v.ID); err != nil {
			s.log.WithError(err).Warn("could not invalidate users cache")
		}
	}

	// keep the token for the fragment requests that follow
	if c, err := r.Cookie(auth.CookieName); err != nil || c.Value != v.Token {
		http.SetCookie(w, &http.Cookie{
			Name:     auth.CookieName,
			Value:    v.Token,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.opts.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}

	rec := &chat.Recorder{}
	if err := sess.Bootstrap(r.Context(), rec); err != nil {
		s.log.WithError(err).WithField("viewer", v.ID).Warn("bootstrap incomplete")
	}
	list, ok := rec.Find(chat.OpReplaceChatList)
	if !ok {
		html, err := sess.Renderer().ChatList(sess.Chats())
		if err != nil {
			s.fail(w, err)
			return
		}
		list.HTML = html
	}

	data := render.PageData{
		Title:         s.opts.Title,
		ChatList:      list.HTML,
		GroupsEnabled: sess.GroupsEnabled(),
		SessionID:     id,
	}
	if s.opts.PollInterval > 0 {
		data.LiveURL = "/live?" + url.Values{
			"interval":   {s.opts.PollInterval.String()},
			sessionParam: {id},
		}.Encode()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := sess.Renderer().Page(w, data); err != nil {
		s.log.WithError(err).Error("render page")
	}
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	rec := &chat.Recorder{}
	s.respond(w, rec, sess.LoadChats(r.Context(), rec))
}

func (s *Server) newChatDialog(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	rec := &chat.Recorder{}
	if err := sess.LoadUsers(r.Context()); err != nil {
		s.respond(w, rec, err)
		return
	}
	s.respond(w, rec, sess.ShowNewChat(rec))
}

func (s *Server) createGroupDialog(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	rec := &chat.Recorder{}
	if !sess.GroupsEnabled() {
		s.respond(w, rec, chat.ErrGroupsDisabled)
		return
	}
	if err := sess.LoadUsers(r.Context()); err != nil {
		s.respond(w, rec, err)
		return
	}
	s.respond(w, rec, sess.ShowCreateGroup(rec))
}

func (s *Server) selectChat(w http.ResponseWriter, r *http.Request) {
	conv, err := chat.ParseConversation(r.FormValue("kind"), r.FormValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, _ := s.session(w, r)
	rec := &chat.Recorder{}
	s.respond(w, rec, sess.Select(r.Context(), rec, conv))
}

func (s *Server) startDirect(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	rec := &chat.Recorder{}
	s.respond(w, rec, sess.StartDirect(r.Context(), rec, chi.URLParam(r, "userID")))
}

func (s *Server) refreshMessages(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	rec := &chat.Recorder{}
	s.respond(w, rec, sess.Refresh(r.Context(), rec))
}

func (s *Server) pollMessages(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	rec := &chat.Recorder{}
	s.respond(w, rec, sess.Poll(r.Context(), rec))
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sess, v := s.session(w, r)
	rec := &chat.Recorder{}
	conv, err := sess.Send(r.Context(), rec, r.FormValue("content"))
	if err == nil {
		s.nudge(r.Context(), v, conv)
	}
	s.respond(w, rec, err)
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	sess, _ := s.session(w, r)
	rec := &chat.Recorder{}
	_, err := sess.CreateGroup(r.Context(), rec, chat.GroupForm{
		Name:        r.PostForm.Get("name"),
		Description: r.PostForm.Get("description"),
		MemberIDs:   r.PostForm["member_ids"],
	})
	s.respond(w, rec, err)
}

func (s *Server) groupInfo(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.session(w, r)
	rec := &chat.Recorder{}
	s.respond(w, rec, sess.GroupInfo(rec))
}

func (s *Server) nudge(ctx context.Context, v auth.Viewer, conv chat.Conversation) {
	if s.hub == nil || conv.IsZero() {
		return
	}
	if err := s.hub.Publish(ctx, live.Nudge{From: v.ID, Conversation: conv.String()}); err != nil {
		s.log.WithError(err).Warn("could not publish nudge")
	}
}

// respond maps the session's outcome to a status and writes what it drew.
func (s *Server) respond(w http.ResponseWriter, rec *chat.Recorder, err error) {
	status := http.StatusOK
	cause := errors.Cause(err)
	switch {
	case err == nil, cause == chat.ErrSuperseded:
	case cause == chat.ErrGroupsDisabled:
		status = http.StatusForbidden
	case chat.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case api.IsTransport(err):
		status = http.StatusBadGateway
	default:
		if _, ok := api.AsAPIError(err); ok {
			status = http.StatusBadGateway
			break
		}
		s.log.WithError(err).Error("request failed")
		status = http.StatusInternalServerError
	}
	writeFragment(w, status, rec.Patches())
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
