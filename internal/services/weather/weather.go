// Package weather answers GetWeather tool calls arriving on the input queue
// with a simulated forecast.
package weather

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"github.com/deepgram/forecaster/internal/domain/agents/models"
	"github.com/deepgram/forecaster/internal/services/queue"
	"github.com/deepgram/forecaster/pkg/logger"
)

// Group is the consumer group the worker reads the input queue with.
const Group = "weather"

var (
	temperatures = []int{60, 65, 70, 75, 80, 85}
	descriptions = []string{"sunny", "cloudy", "rainy", "stormy", "windy"}
)

// Pick returns an index in [0, n).
type Pick func(n int) int

// Handle builds the forecast for req. The correlation id is copied verbatim.
func Handle(req models.WeatherRequest, pick Pick) models.WeatherResult {
	if pick == nil {
		pick = rand.IntN
	}
	t := temperatures[pick(len(temperatures))]
	d := descriptions[pick(len(descriptions))]

	return models.WeatherResult{
		Value:         fmt.Sprintf("%s weather is %d degrees and %s", req.Location, t, d),
		CorrelationID: req.CorrelationID,
	}
}

// Transport is the part of the queue bridge the worker needs.
type Transport interface {
	Send(ctx context.Context, queue string, payload interface{}) (string, error)
	Consume(ctx context.Context, queue, group string, handler queue.Handler) error
}

type Worker struct {
	transport Transport
	input     string
	output    string
	pick      Pick
}

func NewWorker(transport Transport, input, output string) *Worker {
	return &Worker{
		transport: transport,
		input:     input,
		output:    output,
		pick:      rand.IntN,
	}
}

// Run serves the input queue until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	l := logger.For(logger.WORKER)
	l.Info().Str("input", w.input).Str("output", w.output).Msg("Weather worker started")
	return w.transport.Consume(ctx, w.input, Group, w.handle)
}

func (w *Worker) handle(ctx context.Context, d queue.Delivery) error {
	var req models.WeatherRequest
	if err := d.Decode(&req); err != nil {
		// Acked by returning nil; the item can never be served.
		log.Error().Err(err).Str("entry_id", d.ID).Msg("Dropping malformed weather request")
		return nil
	}

	res := Handle(req, w.pick)
	if _, err := w.transport.Send(ctx, w.output, res); err != nil {
		return fmt.Errorf("weather: reply %s: %w", req.CorrelationID, err)
	}

	log.Debug().
		Str("correlation_id", req.CorrelationID).
		Str("location", req.Location).
		Msg("Answered weather request")
	return nil
}
