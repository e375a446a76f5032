package agents

import (
	"context"
	"errors"
	"net/http"

	"github.com/deepgram/forecaster/internal/domain/agents/models"
	"github.com/sashabaranov/go-openai"
)

// wrapError classifies a go-openai failure. 4xx responses other than 408 and
// 429 are rejections; everything else is treated as the backend being
// unavailable. A done ctx wins over both.
func wrapError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return models.NewError(models.KindCancelled, op, "", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classify(op, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classify(op, reqErr.HTTPStatusCode, http.StatusText(reqErr.HTTPStatusCode), err)
	}

	return models.NewError(models.KindBackendUnavailable, op, "", err)
}

func classify(op string, status int, reason string, err error) error {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return models.NewError(models.KindBackendUnavailable, op, reason, err)
	case status >= 400 && status < 500:
		return models.NewError(models.KindBackendRejected, op, reason, err)
	default:
		return models.NewError(models.KindBackendUnavailable, op, reason, err)
	}
}

// IsNotFound reports whether err is a backend rejection for a missing resource.
func IsNotFound(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusNotFound
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusNotFound
	}
	return false
}
