package web

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"go-chat-web/internal/auth"
	"go-chat-web/internal/chat"
	"go-chat-web/internal/live"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 512
	touchPeriod    = time.Minute
)

// liveClient is one page's websocket. It polls the session on a ticker, and
// immediately when the hub says the open conversation changed.
type liveClient struct {
	server    *Server
	conn      *websocket.Conn
	send      chan []byte
	wake      chan struct{}
	session   *chat.Session
	viewerID  string
	sessionID string
	interval  time.Duration
	log       logrus.FieldLogger
}

func (s *Server) serveLive(w http.ResponseWriter, r *http.Request) {
	v, _ := auth.ViewerFrom(r.Context())
	sess, id, _ := s.sessions.Session(w, r, v)
	interval := s.pollInterval(r.URL.Query().Get("interval"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &liveClient{
		server:    s,
		conn:      conn,
		send:      make(chan []byte, 256),
		wake:      make(chan struct{}, 1),
		session:   sess,
		viewerID:  v.ID,
		sessionID: id,
		interval:  interval,
		log:       s.log.WithFields(logrus.Fields{"viewer": v.ID, "session": id}),
	}

	// The request context ends with the handler; the feed outlives it.
	ctx, cancel := context.WithCancel(context.Background())
	if s.hub != nil {
		s.hub.Register(c)
	}
	c.log.WithField("interval", interval).Info("live feed connected")

	go c.writePump(ctx)
	go c.readPump(cancel)
	go c.pollLoop(ctx)
}

// pollInterval reads a duration ("2s") or plain milliseconds, never below the minimum.
func (s *Server) pollInterval(raw string) time.Duration {
	d := s.opts.PollInterval
	if raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			d = parsed
		} else if ms, err := strconv.Atoi(raw); err == nil {
			d = time.Duration(ms) * time.Millisecond
		}
	}
	if d <= 0 {
		d = defaultPollInterval
	}
	if d < s.opts.MinPoll {
		d = s.opts.MinPoll
	}
	return d
}

func (c *liveClient) Wants(n live.Nudge) bool {
	if n.From == c.viewerID {
		return false
	}
	conv := c.session.Conversation()
	switch conv.Kind {
	case chat.KindGroup:
		return n.Conversation == conv.String()
	case chat.KindDirect:
		return conv.PeerID == n.From && n.Conversation == chat.Direct(c.viewerID).String()
	}
	return false
}

func (c *liveClient) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// pollLoop runs ticks and nudges through one PollEvery, so the feed never has
// two polls in flight.
func (c *liveClient) pollLoop(ctx context.Context) {
	go c.touchLoop(ctx)
	if err := c.session.PollEvery(ctx, &liveSurface{c: c}, c.interval, c.wake); err != nil && ctx.Err() == nil {
		c.log.WithError(err).Warn("poll loop stopped")
	}
}

func (c *liveClient) touchLoop(ctx context.Context) {
	touch := time.NewTicker(touchPeriod)
	defer touch.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-touch.C:
			c.server.sessions.Touch(c.sessionID)
		}
	}
}

// readPump only services control frames; the page never writes to the feed.
func (c *liveClient) readPump(cancel context.CancelFunc) {
	defer func() {
		cancel()
		if c.server.hub != nil {
			c.server.hub.Unregister(c)
		}
		c.conn.Close()
		c.log.Info("live feed closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("live feed read")
			}
			return
		}
	}
}

func (c *liveClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// queued fragments go out in the same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *liveClient) push(p chat.Patch) {
	var buf bytes.Buffer
	writeOOB(&buf, p)
	if buf.Len() == 0 {
		return
	}
	select {
	case c.send <- buf.Bytes():
	default:
		c.log.Warn("live feed backed up, dropping fragment")
	}
}

// liveSurface turns session output into out-of-band fragments for the htmx
// websocket extension.
type liveSurface struct{ c *liveClient }

func (s *liveSurface) ReplaceChatList(h template.HTML) {
	s.c.push(chat.Patch{Op: chat.OpReplaceChatList, HTML: h})
}
func (s *liveSurface) ReplaceHeader(h template.HTML) {
	s.c.push(chat.Patch{Op: chat.OpReplaceHeader, HTML: h})
}
func (s *liveSurface) ReplaceMessages(h template.HTML) {
	s.c.push(chat.Patch{Op: chat.OpReplaceMessages, HTML: h})
}
func (s *liveSurface) AppendMessages(h template.HTML) {
	s.c.push(chat.Patch{Op: chat.OpAppendMessages, HTML: h})
}
func (s *liveSurface) ShowDialog(h template.HTML) { s.c.push(chat.Patch{Op: chat.OpShowDialog, HTML: h}) }
func (s *liveSurface) CloseDialog()                { s.c.push(chat.Patch{Op: chat.OpCloseDialog}) }

// ClearComposer has nothing to do on the feed; only sends clear the composer.
func (s *liveSurface) ClearComposer()   {}
func (s *liveSurface) Alert(msg string) { s.c.push(chat.Patch{Op: chat.OpAlert, Text: msg}) }
