package health

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deepgram/forecaster/pkg/httpext"
)

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

type Response struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
}

// HandleHealth reports whether the queue transport is reachable.
func HandleHealth(ping PingFunc, w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check failed")
		httpext.JsonResponse(w, http.StatusServiceUnavailable, Response{Status: "unavailable", Redis: "down"})
		return
	}
	httpext.JsonResponse(w, http.StatusOK, Response{Status: "ok", Redis: "up"})
}
