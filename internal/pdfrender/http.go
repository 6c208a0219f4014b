package pdfrender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/delsur/comandero/internal/pkg/httpretry"
)

// HTTP posts the HTML to a render service and stores the PDF it returns.
type HTTP struct {
	url    string
	client httpretry.HTTPDoer
}

// NewHTTP builds an HTTP renderer. A nil doer gets a retrying client over a
// 60s-timeout http.Client.
func NewHTTP(url string, doer httpretry.HTTPDoer) *HTTP {
	if doer == nil {
		doer = httpretry.NewRetryClient(&http.Client{Timeout: 60 * time.Second}, 3)
	}
	return &HTTP{url: url, client: doer}
}

// Render posts the HTML and reads the PDF back.
func (h *HTTP) Render(ctx context.Context, html []byte) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "text/html; charset=utf-8")
	req.Header.Set("Accept", "application/pdf")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("render service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("render service returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read render response: %w", err)
	}
	return data, "pdf", nil
}
