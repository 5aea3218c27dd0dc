package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowrise/focusync/internal/session"
)

// ErrNoEndpoint is returned while no batch endpoint is configured; the
// queue keeps accumulating until one is.
var ErrNoEndpoint = errors.New("batch endpoint not configured")

// HTTPSender posts event batches as one JSON array. Any non-2xx
// response is a total batch failure.
type HTTPSender struct {
	url    string
	client *http.Client
}

// NewHTTPSender builds a sender for the given endpoint.
func NewHTTPSender(url string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (h *HTTPSender) SubmitBatch(ctx context.Context, events []session.Event) error {
	if h.url == "" {
		return ErrNoEndpoint
	}
	body, err := json.Marshal(events)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("batch endpoint returned %d", resp.StatusCode)
	}
	return nil
}

var _ BatchSender = (*HTTPSender)(nil)
