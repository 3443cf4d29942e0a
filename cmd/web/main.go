package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"go-chat-web/internal/api"
	"go-chat-web/internal/auth"
	"go-chat-web/internal/cache"
	"go-chat-web/internal/config"
	"go-chat-web/internal/live"
	"go-chat-web/internal/render"
	"go-chat-web/internal/web"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", "", "http service address (overrides CHATWEB_ADDR)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}
	log.SetLevel(cfg.Level())
	if *addr != "" {
		cfg.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Shared cache + nudges: redis when configured, in-process otherwise
	var store cache.Store
	var broker live.Broker
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		log.Println("✅ Connected to Redis")
		store = cache.NewRedisStore(rdb, "chat-web:")
		broker = live.NewRedisBroker(rdb, live.DefaultChannel)
	} else {
		mem := cache.NewMemoryStore()
		store = mem
		broker = live.NewLocalBroker()
		go sweepMemory(ctx, mem, cfg.UsersCacheTTL)
		log.Println("⚠️  No Redis configured, caching in memory")
	}

	directory := cache.NewDirectory(store, cfg.UsersCacheTTL, log)

	hub := live.NewHub(broker, log)
	go hub.Run(ctx)
	go func() {
		if err := hub.Listen(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("❌ Nudge listener stopped")
		}
	}()

	// 3. Web host
	srv, err := web.NewServer(web.Options{
		API: api.Options{
			BaseURL: cfg.APIBaseURL,
			Timeout: cfg.APITimeout,
			Retries: cfg.APIRetries,
			Backoff: cfg.APIBackoff,
		},
		Render:         render.Options{Location: cfg.Location(), TimeLayout: cfg.TimeLayout},
		GroupsEnabled:  cfg.GroupsEnabled,
		SessionTTL:     cfg.SessionTTL,
		PollInterval:   cfg.PollInterval,
		MinPoll:        cfg.MinPoll,
		AllowedOrigins: cfg.AllowedOrigins,
		SecureCookies:  cfg.Env == "production",
	}, auth.NewValidator(cfg.JWTSecret, cfg.JWTIssuer), directory, hub, log)
	if err != nil {
		log.Fatalf("❌ Web host: %v", err)
	}
	go srv.Sessions().Janitor(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown")
		}
	}()

	log.Printf("🚀 Server starting on %s (backend %s)", cfg.Addr, cfg.APIBaseURL)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
	log.Println("👋 Server stopped")
}

func sweepMemory(ctx context.Context, mem *cache.MemoryStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mem.Sweep()
		}
	}
}
