// Package web hosts the chat page. It owns one chat session per browser and
// answers the page's htmx requests with HTML fragments.
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"go-chat-web/internal/api"
	"go-chat-web/internal/auth"
	"go-chat-web/internal/cache"
	"go-chat-web/internal/chat"
	"go-chat-web/internal/live"
	"go-chat-web/internal/render"
)

const (
	defaultSessionTTL   = 30 * time.Minute
	defaultPollInterval = 3 * time.Second
	defaultMinPoll      = 500 * time.Millisecond
)

type Options struct {
	API           api.Options
	Render        render.Options
	GroupsEnabled bool
	Title         string
	SessionTTL    time.Duration
	// PollInterval is what the page asks the live feed for; zero turns the feed off.
	PollInterval   time.Duration
	MinPoll        time.Duration
	AllowedOrigins []string
	SecureCookies  bool
}

type Server struct {
	opts      Options
	client    *api.Client
	auth      *auth.Middleware
	sessions  *Registry
	directory *cache.Directory
	hub       *live.Hub
	upgrader  websocket.Upgrader
	log       logrus.FieldLogger
}

// NewServer wires the host. directory and hub are optional.
func NewServer(opts Options, validator auth.TokenValidator, directory *cache.Directory, hub *live.Hub, log logrus.FieldLogger) (*Server, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.API.Logger == nil {
		opts.API.Logger = log
	}
	client, err := api.NewClient(opts.API)
	if err != nil {
		return nil, errors.Wrap(err, "api client")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.MinPoll <= 0 {
		opts.MinPoll = defaultMinPoll
	}
	if opts.Title == "" {
		opts.Title = "Chat"
	}

	s := &Server{
		opts:      opts,
		client:    client,
		auth:      auth.NewMiddleware(validator),
		directory: directory,
		hub:       hub,
		log:       log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.sessions = NewRegistry(s.newSession, opts.SessionTTL, opts.SecureCookies, log)
	return s, nil
}

func (s *Server) Sessions() *Registry { return s.sessions }

func (s *Server) newSession(v auth.Viewer) *chat.Session {
	client := s.client.WithToken(v.Token)
	opts := chat.Options{GroupsEnabled: s.opts.GroupsEnabled, Logger: s.log}
	if s.directory != nil {
		opts.Users = s.directory.For(v.ID, client)
	}
	return chat.NewSession(client, render.New(v.ID, s.opts.Render), opts)
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Handle)

		r.Get("/", s.page)
		r.Get("/live", s.serveLive)

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", s.listChats)
			r.Get("/new", s.newChatDialog)
			r.Post("/select", s.selectChat)
			r.Post("/direct/{userID}", s.startDirect)
		})
		r.Route("/messages", func(r chi.Router) {
			r.Post("/", s.sendMessage)
			r.Post("/refresh", s.refreshMessages)
			r.Get("/poll", s.pollMessages)
		})
		r.Route("/groups", func(r chi.Router) {
			r.Get("/new", s.createGroupDialog)
			r.Post("/", s.createGroup)
			r.Get("/info", s.groupInfo)
		})
	})
	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range s.opts.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}
