package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tubelens/tubelens/internal/config"
	"github.com/tubelens/tubelens/internal/db"
	"github.com/tubelens/tubelens/internal/gateway"
	"github.com/tubelens/tubelens/internal/http/api"
	"github.com/tubelens/tubelens/internal/logging"
	"github.com/tubelens/tubelens/internal/rotation"
	"github.com/tubelens/tubelens/internal/store"
	"github.com/tubelens/tubelens/internal/usage"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// shutdownTimeout bounds graceful server shutdown.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn.WithContext(ctx))
}

// RunServer boots the dashboard API server. Every component is constructed
// here and wired explicitly; the gateways are the only holders of selection
// cache state.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Log)

	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	credStore := store.NewCredentialStore(conn)
	selector := rotation.NewSelector(credStore, cfg.FallbackSecrets())
	recorder := usage.NewRecorder(credStore, conn)

	youtubeGateway := gateway.NewYouTubeGateway(selector, recorder, cfg.Providers.YouTube.BaseURL)
	openaiGateway := gateway.NewOpenAIGateway(selector, recorder, cfg.Providers.OpenAI.BaseURL, cfg.Providers.OpenAI.Cost)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, api.Dependencies{
		DB:      conn,
		Store:   credStore,
		YouTube: youtubeGateway,
		OpenAI:  openaiGateway,
	})

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return errShutdown
	}
	return nil
}
