package live

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

type feed struct {
	viewer string
	open   string
	woken  chan struct{}
}

func (f *feed) Wants(n Nudge) bool { return n.From != f.viewer && n.Conversation == f.open }

func (f *feed) Wake() {
	select {
	case f.woken <- struct{}{}:
	default:
	}
}

func TestHubWakesInterestedFeeds(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(NewLocalBroker(), logger)
	go hub.Run(ctx)
	listening := make(chan struct{})
	go func() {
		close(listening)
		_ = hub.Listen(ctx)
	}()
	<-listening

	watcher := &feed{viewer: "u2", open: "group:4", woken: make(chan struct{}, 1)}
	author := &feed{viewer: "u1", open: "group:4", woken: make(chan struct{}, 1)}
	elsewhere := &feed{viewer: "u3", open: "group:5", woken: make(chan struct{}, 1)}
	hub.Register(watcher)
	hub.Register(author)
	hub.Register(elsewhere)

	// Listen subscribes asynchronously; retry until the nudge lands.
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for woke := false; !woke; {
		if err := hub.Publish(ctx, Nudge{From: "u1", Conversation: "group:4"}); err != nil {
			t.Fatal(err)
		}
		select {
		case <-watcher.woken:
			woke = true
		case <-tick.C:
		case <-deadline:
			t.Fatal("watcher never woken")
		}
	}

	select {
	case <-author.woken:
		t.Error("author should not be woken by its own nudge")
	case <-elsewhere.woken:
		t.Error("feed on another conversation should not be woken")
	case <-time.After(50 * time.Millisecond):
	}

	hub.Unregister(watcher)
}

func TestHubStoppedDoesNotBlock(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(NewLocalBroker(), logger)

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	f := &feed{viewer: "u1", open: "group:1", woken: make(chan struct{}, 1)}
	hub.Register(f)
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		hub.Unregister(f)
		hub.Register(f)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("register/unregister blocked after Run returned")
	}
}
