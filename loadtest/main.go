package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go-chat-web/internal/auth"
)

// Drives pairs of browsers through the web host: both open the page and the
// conversation, one sends, the other listens on the live feed.
var (
	baseURL   = flag.String("url", "http://localhost:8080", "web host base url")
	secret    = flag.String("secret", "", "JWT secret shared with the backend (CHATWEB_JWT_SECRET)")
	pairCount = flag.Int("pairs", 50, "number of chatting pairs")
	msgCount  = flag.Int("messages", 20, "messages sent per pair")
	interval  = flag.Duration("interval", time.Second, "live feed poll interval")
	userFmt   = flag.String("users", "lt_%d_%s", "user id pattern; gets the pair number and a/b")
)

var log = logrus.New()

type stats struct {
	sent     int64
	failed   int64
	received int64
}

func main() {
	flag.Parse()
	if *secret == "" {
		log.Fatal("❌ -secret is required")
	}
	tokens := auth.NewValidator(*secret, "go-chat-web-loadtest")

	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each pair...", *pairCount*2, *msgCount)
	start := time.Now()
	var st stats

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < *pairCount; i++ {
		pairID := i
		g.Go(func() error {
			if err := runPair(ctx, tokens, pairID, &st); err != nil {
				log.WithError(err).WithField("pair", pairID).Warn("❌ pair failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	log.WithFields(logrus.Fields{
		"sent":     atomic.LoadInt64(&st.sent),
		"failed":   atomic.LoadInt64(&st.failed),
		"received": atomic.LoadInt64(&st.received),
		"took":     time.Since(start).Round(time.Millisecond),
	}).Info("✅ LOAD TEST COMPLETE")
}

type browser struct {
	id    string
	token string
	http  *http.Client
}

func newBrowser(tokens *auth.Validator, id string) (*browser, error) {
	token, err := tokens.Issue(id, id, time.Hour)
	if err != nil {
		return nil, err
	}
	jar, _ := cookiejar.New(nil)
	return &browser{id: id, token: token, http: &http.Client{Jar: jar, Timeout: 15 * time.Second}}, nil
}

func (b *browser) call(ctx context.Context, method, path string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, method, *baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return nil
}

// open loads the page and selects the direct chat with peer.
func (b *browser) open(ctx context.Context, peer string) error {
	if err := b.call(ctx, http.MethodGet, "/?token="+url.QueryEscape(b.token), url.Values{}); err != nil {
		return err
	}
	return b.call(ctx, http.MethodPost, "/chats/select", url.Values{"kind": {"direct"}, "id": {peer}})
}

func runPair(ctx context.Context, tokens *auth.Validator, pairID int, st *stats) error {
	a, err := newBrowser(tokens, fmt.Sprintf(*userFmt, pairID, "a"))
	if err != nil {
		return err
	}
	b, err := newBrowser(tokens, fmt.Sprintf(*userFmt, pairID, "b"))
	if err != nil {
		return err
	}
	if err := a.open(ctx, b.id); err != nil {
		return err
	}
	if err := b.open(ctx, a.id); err != nil {
		return err
	}

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	ready := make(chan error, 1)
	go listen(listenCtx, b, st, ready)
	if err := <-ready; err != nil {
		return err
	}

	for i := 0; i < *msgCount; i++ {
		content := fmt.Sprintf("LoadTest Msg %d from %s", i, a.id)
		if err := a.call(ctx, http.MethodPost, "/messages", url.Values{"content": {content}}); err != nil {
			atomic.AddInt64(&st.failed, 1)
			log.WithError(err).WithField("user", a.id).Debug("send failed")
			continue
		}
		atomic.AddInt64(&st.sent, 1)
		// simulate a human typing
		time.Sleep(10 * time.Millisecond)
	}
	// leave the listener a couple of intervals to catch up
	time.Sleep(2 * *interval)
	log.Printf("✅ %s finished sending %d msgs", a.id, *msgCount)
	return nil
}

func listen(ctx context.Context, b *browser, st *stats, ready chan<- error) {
	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http") + "/live?interval=" + url.QueryEscape(interval.String())
	dialer := websocket.Dialer{Jar: b.http.Jar, HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	ready <- err
	if err != nil {
		return
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		atomic.AddInt64(&st.received, int64(strings.Count(string(frame), "message-bubble")))
	}
}
