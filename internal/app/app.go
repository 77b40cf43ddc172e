// Package app wires configuration, logging, storage and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumenpress/internal/config"
	"github.com/lumenpress/lumenpress/internal/db"
	"github.com/lumenpress/lumenpress/internal/http/api"
	"github.com/lumenpress/lumenpress/internal/kv"
	"github.com/lumenpress/lumenpress/internal/kv/filestore"
	"github.com/lumenpress/lumenpress/internal/kv/gormstore"
	"github.com/lumenpress/lumenpress/internal/kv/memstore"
	"github.com/lumenpress/lumenpress/internal/kv/redisstore"
	"github.com/lumenpress/lumenpress/internal/logging"
	"github.com/lumenpress/lumenpress/internal/resource"
	"github.com/lumenpress/lumenpress/internal/util"
	"github.com/lumenpress/lumenpress/internal/webui"
	log "github.com/sirupsen/logrus"
)

// Migrate opens the configured database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	if cfg.Storage.Driver != kv.DriverDatabase {
		return fmt.Errorf("app: migrate requires the %q storage driver, got %q", kv.DriverDatabase, cfg.Storage.Driver)
	}
	conn, err := db.Open(cfg.Storage.Database.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	}()
	return db.Migrate(conn.WithContext(ctx))
}

// OpenStore opens the kv.Store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (kv.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case kv.DriverFile, "":
		store, err := filestore.Open(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case kv.DriverRedis:
		log.Infof("opening redis store %s", util.RedactURL(cfg.Redis.URL))
		store, err := redisstore.Open(ctx, redisstore.Options{
			URL:          cfg.Redis.URL,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case kv.DriverDatabase:
		log.Infof("opening database store %s", util.RedactURL(cfg.Database.DSN))
		conn, err := db.Open(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if errMigrate := db.Migrate(conn); errMigrate != nil {
			if sqlDB, errDB := conn.DB(); errDB == nil {
				_ = sqlDB.Close()
			}
			return nil, errMigrate
		}
		log.Infof("database store ready (dialect=%s)", db.DialectName(conn))
		return gormstore.New(conn), nil
	case kv.DriverMemory:
		log.Warn("memory storage driver selected; data is lost on restart")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("app: unsupported storage driver %q", cfg.Driver)
	}
}

// NewEngine builds the gin engine serving the API and, when configured, the front-end.
func NewEngine(svc *resource.Service, cfg config.Config) (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(gin.Recovery(), logging.GinLogger(), api.SecurityHeaders(cfg.Server))
	api.RegisterRoutes(engine, svc, cfg)

	if dir := strings.TrimSpace(cfg.Server.PublicDir); dir != "" {
		bundle, errLoad := webui.Load(dir)
		if errLoad != nil {
			return nil, errLoad
		}
		webui.Register(engine, bundle)
	}
	return engine, nil
}

// RunServer serves the API until ctx is cancelled, then shuts down gracefully.
func RunServer(ctx context.Context, cfg config.Config) error {
	gin.SetMode(gin.ReleaseMode)

	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := store.Close(); errClose != nil {
			log.WithError(errClose).Warn("close store")
		}
	}()

	svc := resource.NewService(store, resource.WithKeyPrefix(cfg.Storage.KeyPrefix))
	engine, err := NewEngine(svc, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s (storage=%s)", cfg.Server.Addr, cfg.Storage.Driver)
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	return nil
}
