package record

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alejzeis/rps-arena/game"
)

// HTTPRecorder forwards finished games as JSON to a remote results service
type HTTPRecorder struct {
	rest *resty.Client
	url  string
}

// NewHTTPRecorder posts results to url, giving up after timeout
func NewHTTPRecorder(url string, timeout time.Duration) *HTTPRecorder {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.SetHeader("User-Agent", "rps-arena-recorder")
	return &HTTPRecorder{rest: client, url: url}
}

func (h *HTTPRecorder) Record(ctx context.Context, finished game.Finished) error {
	response, err := h.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(NewResult(finished)).
		Post(h.url)
	if err != nil {
		return fmt.Errorf("post result to %s: %w", h.url, err)
	}
	if !response.IsSuccess() {
		return fmt.Errorf("post result to %s: unexpected status %d: %s", h.url, response.StatusCode(), response.String())
	}
	return nil
}

func (h *HTTPRecorder) Close() error {
	return nil
}
