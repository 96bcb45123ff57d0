package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"billease/pos/internal/cache"
	"billease/pos/internal/config"
	"billease/pos/internal/connectivity"
	"billease/pos/internal/httpapi"
	"billease/pos/internal/remote"
	"billease/pos/internal/service"
	"billease/pos/internal/session"
	"billease/pos/internal/store"
	"billease/pos/internal/store/memory"
	sqlitestore "billease/pos/internal/store/sqlite"
	syncengine "billease/pos/internal/sync"
)

func main() {
	cfg := config.Load()
	if cfg.RemoteBaseURL == "" {
		log.Fatal("REMOTE_BASE_URL must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Store
	closers := make([]func() error, 0, 2)

	if cfg.DBPath != "" {
		db, err := sqlitestore.Open(cfg.DBPath)
		if err != nil {
			log.Fatalf("sqlite store at %s: %v", cfg.DBPath, err)
		}
		repo = db
		closers = append(closers, db.Close)
		log.Printf("store: sqlite at %s", cfg.DBPath)
	} else {
		repo = memory.New()
		log.Println("store: in-memory")
	}

	catalog := cache.CatalogCache(cache.NoopCatalogCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCatalogCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			catalog = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	authority := remote.NewClient(cfg.RemoteBaseURL)
	monitor := connectivity.NewMonitor(authority.Ping, cfg.ProbeInterval)

	var engine *syncengine.Engine
	svc := service.New(repo, catalog, func() {
		if engine != nil {
			engine.Nudge()
		}
	})
	engine = syncengine.NewEngine(repo, authority, monitor, svc.ShopID, cfg.SyncInterval, cfg.SyncTimeout)
	engine.OnApply(func() { svc.InvalidateCatalog(context.Background()) })

	sessions := session.NewManager(repo)
	if sess, err := sessions.Load(ctx); err == nil {
		if !sess.Offline {
			authority.SetToken(sess.Token)
		}
		if sess.User.ShopID != 0 {
			svc.BindShop(sess.User.ShopID)
		}
		log.Printf("restored session for %s", sess.User.Username)
	} else if err != session.ErrNoSession {
		log.Printf("WARN: restore session: %v", err)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go monitor.Run(runCtx)
	go engine.Run(runCtx)

	api := httpapi.New(svc, sessions, authority, engine, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              "127.0.0.1:" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS device daemon listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-runCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("daemon stopped")
}
