package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/avesia/backend/internal/alerts"
	"github.com/avesia/backend/internal/api"
	"github.com/avesia/backend/internal/clips"
	"github.com/avesia/backend/internal/data"
	"github.com/avesia/backend/internal/metrics"
	"github.com/avesia/backend/internal/nodes"
	"github.com/avesia/backend/internal/publisher"
	"github.com/avesia/backend/internal/ratelimit"
	"github.com/avesia/backend/internal/results"
	"github.com/avesia/backend/internal/tokens"
	"github.com/avesia/backend/internal/trigger"
	"github.com/avesia/backend/internal/vision"
)

type config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Paths struct {
		NodesFile string `yaml:"nodes_file"`
		ClipDir   string `yaml:"clip_dir"`
	} `yaml:"paths"`
	Vision struct {
		URL string `yaml:"url"`
	} `yaml:"vision"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
}

func main() {
	// 1. Config: yaml defaults, env overrides for anything secret or per-host.
	var cfg config
	if raw, err := os.ReadFile("config/default.yaml"); err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Fatalf("Config parse error: %v", err)
		}
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if p := os.Getenv("PORT"); p != "" {
		cfg.Server.Port = p
	}
	if cfg.Paths.NodesFile == "" {
		cfg.Paths.NodesFile = "config/nodes.json"
	}
	if cfg.Paths.ClipDir == "" {
		cfg.Paths.ClipDir = "data/clips"
	}
	if v := os.Getenv("VISION_URL"); v != "" {
		cfg.Vision.URL = v
	}
	if cfg.Vision.URL == "" {
		cfg.Vision.URL = "http://localhost:5050"
	}

	dbHost := os.Getenv("DB_HOST")
	dbUser := os.Getenv("DB_USER")
	dbPass := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	redisAddr := os.Getenv("REDIS_ADDR")
	natsURL := os.Getenv("NATS_URL")
	jwtKey := os.Getenv("JWT_SIGNING_KEY")
	smtpPass := os.Getenv("SMTP_PASSWORD")

	if jwtKey == "" {
		jwtKey = "dev-secret-do-not-use-in-prod"
	}
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", dbUser, dbPass, dbHost, dbName)

	// 2. DB Init
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("DB open error: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("DB ping error: %v", err)
	}

	// 3. Components
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	m := metrics.New()

	projectModel := &data.ProjectModel{DB: db}
	videoModel := &data.VideoModel{DB: db}
	clipModel := &data.ClipModel{DB: db}

	tokenMgr := tokens.NewManager(jwtKey, 24*time.Hour)
	visionClient := vision.NewClient(cfg.Vision.URL)

	notifier := alerts.NewNotifier(alerts.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: smtpPass,
		From:     cfg.SMTP.From,
	})

	// 4. Listener Registry + Watcher
	listeners, err := nodes.LoadFile(cfg.Paths.NodesFile)
	if err != nil {
		log.Fatalf("Nodes load error: %v", err)
	}
	registry := nodes.NewRegistry(listeners)
	log.Printf("Loaded %d listeners from %s", len(listeners), cfg.Paths.NodesFile)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	watcher := nodes.NewWatcher(cfg.Paths.NodesFile, registry, func(ls []*nodes.ListenerConfig) {
		pushCtx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
		defer cancel()
		if err := visionClient.PushNodes(pushCtx, ls); err != nil {
			log.Printf("[WARN] vision push after reload failed: %v", err)
		}
	})
	watcher.Start(rootCtx)

	// Initial prompt push runs in the background so a slow vision service
	// does not delay startup.
	go func() {
		pushCtx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
		defer cancel()
		if err := visionClient.PushNodes(pushCtx, listeners); err != nil {
			log.Printf("[WARN] initial vision push failed: %v", err)
		}
	}()

	// 5. Optional NATS publisher
	var eventPublisher trigger.EventPublisher
	if natsURL != "" {
		nc, err := nats.Connect(natsURL)
		if err != nil {
			log.Printf("[WARN] NATS connect failed, trigger events will not be published: %v", err)
		} else {
			defer nc.Close()
			eventPublisher = publisher.NewNATSPublisher(nc, publisher.DefaultSubject, 3)
			log.Printf("Publishing trigger events to %s", publisher.DefaultSubject)
		}
	}

	// 6. Trigger pipeline
	evaluator := &trigger.Evaluator{
		Registry:  registry,
		Limiter:   ratelimit.NewCooldownLimiter(),
		Dedup:     trigger.NewEventDedup(4096, 30*time.Second),
		Clips:     clipModel,
		Videos:    videoModel,
		Projects:  projectModel,
		Extractor: clips.NewExtractor(cfg.Paths.ClipDir),
		Notifier:  notifier,
		Publisher: eventPublisher,
		Metrics:   m,
	}
	dispatcher := trigger.NewDispatcher(evaluator, 256, 4, m)
	dispatcher.Start(rootCtx)

	// 7. Ingest path
	buffer := results.NewBuffer(results.DefaultBufferCap)
	resultService := results.NewService(buffer, results.NewCache(rdb), dispatcher, m)
	hub := api.NewStreamHub()

	// 8. Routing
	router := api.NewRouter(api.Handlers{
		Results:  api.NewResultsHandler(resultService, hub),
		Projects: api.NewProjectHandler(projectModel, clipModel),
		Clips:    api.NewClipHandler(clipModel, projectModel, tokenMgr, cfg.Paths.ClipDir),
		Nodes:    api.NewNodesHandler(cfg.Paths.NodesFile, registry, visionClient),
		Vision:   api.NewVisionHandler(visionClient),
		Health:   api.NewHealthHandler(db, rdb, visionClient),
		Metrics:  m.Handler(),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("avesia-backend listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	rootCancel()
	dispatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
