package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/deepgram/forecaster/internal/api/v1/handlers"
	"github.com/deepgram/forecaster/internal/config"
	"github.com/deepgram/forecaster/internal/services"
	"github.com/deepgram/forecaster/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := services.InitializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.Close()

	var workers sync.WaitGroup
	startWorkers(ctx, &workers, cfg, svc)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           setupRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	workers.Wait()
	log.Info().Msg("Server exited")
}

func startWorkers(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, svc *services.Services) {
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Error().Err(err).Str("worker", name).Msg("Worker stopped with error")
			}
		}()
	}

	if cfg.WeatherWorkerEnabled {
		run("weather", svc.GetWeatherWorker().Run)
	}
	if cfg.ToolRelayEnabled {
		run("relay", svc.GetRelay().Run)
	}
}

func setupRouter(svc *services.Services) *mux.Router {
	r := mux.NewRouter()
	handlers.RegisterRoutes(r, svc)
	return r
}
