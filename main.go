package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"vidvault/catalog"
	"vidvault/comments"
	"vidvault/db"
	"vidvault/httputil"
	"vidvault/proxy"
	"vidvault/ratelimit"
	"vidvault/recs"
	"vidvault/sources"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	DatabaseURL  string // Postgres DSN; empty means SQLite
	DBPath       string
	Port         string
	UpstreamBase string
	ProxyBase    string
	ProbeTimeout time.Duration
	ProbeReferer string
	TagMinVideos int
	CommentRate  int // comment writes per IP per minute
}

func loadConfig() Config {
	return Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DBPath:       getEnv("DB_PATH", "/data/vidvault.db"),
		Port:         getEnv("PORT", "8080"),
		UpstreamBase: getEnv("UPSTREAM_BASE", "https://upstream.example.com"),
		ProxyBase:    getEnv("PROXY_BASE", "http://localhost:8080/proxy"),
		ProbeTimeout: getDurationEnv("PROBE_TIMEOUT", sources.DefaultProbeTimeout),
		ProbeReferer: getEnv("PROBE_REFERER", ""),
		TagMinVideos: getIntEnv("TAG_MIN_VIDEOS", 200),
		CommentRate:  getIntEnv("COMMENT_RATE", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func openDB(cfg Config) (*sql.DB, db.Dialect, error) {
	if cfg.DatabaseURL != "" {
		conn, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, "", err
		}
		conn.SetMaxOpenConns(10)
		return conn, db.DialectPostgres, nil
	}

	conn, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, "", err
	}
	// Single connection: prevents concurrent write conflicts
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			return nil, "", err
		}
	}
	return conn, db.DialectSQLite, nil
}

func main() {
	cfg := loadConfig()

	rawDB, dialect, err := openDB(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer rawDB.Close()

	if err := db.RunMigrations(rawDB, dialect); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	cdb := db.NewCompatDB(rawDB, dialect)
	store := &catalog.Store{DB: cdb}

	resolver := &sources.Resolver{
		Prober: &sources.HTTPProber{
			Timeout: cfg.ProbeTimeout,
			Referer: cfg.ProbeReferer,
		},
		Store:     store,
		Templates: sources.DefaultTemplates(cfg.ProxyBase, cfg.UpstreamBase),
	}

	catalogHandler := &catalog.Handler{
		Store:        store,
		Resolver:     resolver,
		TagMinVideos: cfg.TagMinVideos,
	}
	recsHandler := &recs.Handler{
		Profiler: &recs.Profiler{Store: store},
		Ranker:   &recs.Ranker{Store: store},
	}
	commentsHandler := &comments.Handler{DB: cdb}

	proxyHandler, err := proxy.New(cfg.UpstreamBase)
	if err != nil {
		log.Fatalf("invalid upstream base %q: %v", cfg.UpstreamBase, err)
	}

	commentLimiter := ratelimit.New(cfg.CommentRate, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/api/videos/{id}", catalogHandler.HandleGetVideo)
	r.Get("/api/explore", catalogHandler.HandleExplore)
	r.Get("/api/trending", catalogHandler.HandleTrending)
	r.Get("/api/search", catalogHandler.HandleSearch)
	r.Get("/api/categories", catalogHandler.HandleListCategories)
	r.Get("/api/categories/{id}/videos", catalogHandler.HandleCategoryVideos)
	r.Get("/api/tags", catalogHandler.HandleListTags)
	r.Get("/api/tags/{id}/videos", catalogHandler.HandleTagVideos)
	r.Get("/api/recommended", recsHandler.HandleRecommended)

	r.Get("/api/videos/{id}/comments", commentsHandler.HandleList)
	r.Get("/api/comments/{id}/replies", commentsHandler.HandleReplies)
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(commentLimiter))
		r.Post("/api/comments", commentsHandler.HandleCreate)
		r.Put("/api/comments/{id}", commentsHandler.HandleUpdate)
		r.Delete("/api/comments/{id}", commentsHandler.HandleDelete)
		r.Post("/api/comments/{id}/vote", commentsHandler.HandleVote)
	})

	r.Handle("/proxy/*", proxyHandler)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Printf("vidvault API listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	log.Println("server shut down")
}
