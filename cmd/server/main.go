// Command server runs the loan application review service.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/openlend/review_service/internal/app"
	"github.com/openlend/review_service/internal/app/audit"
	"github.com/openlend/review_service/internal/app/cache"
	"github.com/openlend/review_service/internal/app/httpapi"
	"github.com/openlend/review_service/internal/app/storage/postgres"
	"github.com/openlend/review_service/internal/app/system"
	"github.com/openlend/review_service/internal/config"
	"github.com/openlend/review_service/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("server").WithError(err).Error("configuration failed")
		os.Exit(1)
	}

	log := logger.New("server", logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	opts := app.Options{Logger: log}

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		if err := db.Ping(); err != nil {
			return err
		}
		if err := postgres.Migrate(db, cfg.Database.MigrationsURL); err != nil {
			return err
		}
		store := postgres.New(db)
		opts.Stores = app.Stores{Applications: store, Reviewers: store}
		log.Info("using postgres storage")
	} else {
		log.Warn("no database configured, using in-memory storage")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			return err
		}
		opts.Workloads = cache.NewWorkload(client, cfg.Redis.TTL, log.WithField("component", "workload-cache"))
		log.Info("workload cache enabled")
	}

	trail, err := audit.NewTrail(cfg.Audit.Size, cfg.Audit.Path, log.WithField("component", "audit"))
	if err != nil {
		return err
	}
	defer trail.Close()
	opts.Audit = trail

	application, err := app.New(opts)
	if err != nil {
		return err
	}

	handler := httpapi.NewHandler(application)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.Router(cfg.Auth.JWTSecret),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	manager := system.NewManager(log)
	manager.Register(&httpService{server: server, log: log})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.StartAll(ctx); err != nil {
		return err
	}
	log.WithField("addr", server.Addr).Info("server started")

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return manager.StopAll(shutdownCtx)
}

// httpService adapts http.Server to the system lifecycle.
type httpService struct {
	server *http.Server
	log    *logger.Logger
}

func (s *httpService) Name() string { return "http" }

func (s *httpService) Start(context.Context) error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server failed")
		}
	}()
	return nil
}

func (s *httpService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
