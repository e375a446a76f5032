package prompt

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/rs/zerolog/log"

	"github.com/deepgram/forecaster/internal/api/v1/middleware"
	"github.com/deepgram/forecaster/internal/domain/agents"
	"github.com/deepgram/forecaster/pkg/httpext"
)

const (
	MissingPromptMessage = "Please provide a 'prompt' in the request body."
	InternalErrorMessage = "An error occurred while processing your request."

	maxBodyBytes = 1 << 20
)

type Request struct {
	Prompt string `json:"prompt" validate:"required,notblank"`
}

type Response struct {
	Body string `json:"body"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// HandlePrompt answers {"prompt": "..."} with the agent's reply. GET requests
// without a body may pass the prompt as a query parameter.
func HandlePrompt(promptService agents.PromptService, w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFromContext(r.Context())
	l := log.With().Str("request_id", requestID).Str("method", r.Method).Logger()

	req, err := decodeRequest(r)
	if err != nil {
		l.Warn().Err(err).Msg("Client sent malformed prompt request")
		httpext.JsonError(w, MissingPromptMessage, http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		l.Warn().Err(err).Msg("No prompt provided in the request")
		httpext.JsonError(w, MissingPromptMessage, http.StatusBadRequest)
		return
	}

	l.Info().Int("prompt_length", len(req.Prompt)).Str("client_ip", r.RemoteAddr).Msg("Received prompt request")

	answer, err := promptService.ExecutePrompt(r.Context(), req.Prompt)
	if err != nil {
		l.Error().Err(err).Msg("Failed to execute prompt")
		httpext.JsonError(w, InternalErrorMessage, http.StatusInternalServerError)
		return
	}

	httpext.JsonResponse(w, http.StatusOK, Response{Body: answer})
	l.Info().Int("status", http.StatusOK).Msg("Prompt request processed successfully")
}

func decodeRequest(r *http.Request) (Request, error) {
	var req Request

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return req, err
	}

	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return req, err
		}
	}

	if req.Prompt == "" && r.Method == http.MethodGet {
		req.Prompt = r.URL.Query().Get("prompt")
	}

	if len(body) == 0 && r.Method != http.MethodGet {
		return req, errors.New("empty request body")
	}
	return req, nil
}
