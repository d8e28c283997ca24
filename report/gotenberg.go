// Package report talks to Gotenberg, which turns print templates into PDF.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable is returned when no Gotenberg URL is configured.
var ErrUnavailable = errors.New("report: pdf service not configured")

// maxPDFBytes caps the response read from Gotenberg.
const maxPDFBytes = 32 << 20

// Options tune page layout. Zero values keep Gotenberg defaults (A4 portrait).
type Options struct {
	Landscape bool
	// PaperWidth and PaperHeight are in inches.
	PaperWidth  float64
	PaperHeight float64
}

// Client converts HTML to PDF through the Gotenberg chromium route.
type Client struct {
	baseURL    string
	httpClient *http.Client
	options    Options
}

// NewClient constructs a client. An empty baseURL yields a client whose
// calls fail with ErrUnavailable.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithOptions returns a copy of c that renders with opts.
func (c *Client) WithOptions(opts Options) *Client {
	clone := *c
	clone.options = opts
	return &clone
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.baseURL == "" {
		return ErrUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("report: gotenberg health returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts a complete HTML document into PDF bytes.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrUnavailable
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	// The chromium route requires the entry document to be named index.html.
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	if err := c.writeOptions(writer); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report: gotenberg request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("report: render failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
}

func (c *Client) writeOptions(w *multipart.Writer) error {
	fields := map[string]string{"printBackground": "true"}
	if c.options.Landscape {
		fields["landscape"] = "true"
	}
	if c.options.PaperWidth > 0 && c.options.PaperHeight > 0 {
		fields["paperWidth"] = strconv.FormatFloat(c.options.PaperWidth, 'f', -1, 64)
		fields["paperHeight"] = strconv.FormatFloat(c.options.PaperHeight, 'f', -1, 64)
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return err
		}
	}
	return nil
}
