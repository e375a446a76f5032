package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	goredis "github.com/redis/go-redis/v9"

	"github.com/deepgram/forecaster/internal/api/v1/handlers/health"
	"github.com/deepgram/forecaster/internal/api/v1/handlers/prompt"
	"github.com/deepgram/forecaster/internal/api/v1/middleware"
	"github.com/deepgram/forecaster/internal/services"
)

func RegisterRoutes(router *mux.Router, services *services.Services) {
	router.Use(middleware.RequestID)

	var cache goredis.Cmdable
	if client := services.GetRedisClient(); client != nil {
		cache = client
	}

	router.Handle("/prompt", middleware.RateLimit("prompt", cache)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prompt.HandlePrompt(services.GetPromptService(), w, r)
	}))).Methods("GET", "POST")

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health.HandleHealth(func(ctx context.Context) error {
			if cache == nil {
				return nil
			}
			return cache.Ping(ctx).Err()
		}, w, r)
	}).Methods("GET")
}
