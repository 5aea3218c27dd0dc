package sweep

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

// ErrNoEndpoint is returned while no content endpoint is configured.
var ErrNoEndpoint = errors.New("content endpoint not configured")

// contentRequest is the content submission wire format.
type contentRequest struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	Role      string `json:"role"`
}

// HTTPSender posts content submissions one at a time.
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

func (h *HTTPSender) SubmitContent(ctx context.Context, p session.PendingSubmission) error {
	if h.url == "" {
		return ErrNoEndpoint
	}
	body, err := json.Marshal(contentRequest{
		SessionID: p.SessionID,
		Content:   p.Content,
		Role:      p.Role,
	})
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
		return fmt.Errorf("content endpoint returned %d", resp.StatusCode)
	}
	return nil
}

var _ ContentSender = (*HTTPSender)(nil)
