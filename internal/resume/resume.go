// Package resume talks to the PDF renderer and fetches rendered resumes.
package resume

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/applytrack/internal/apperr"
	"github.com/teemow/applytrack/internal/logging"
)

const (
	// DefaultMaxBytes caps a downloaded PDF.
	DefaultMaxBytes int64 = 10 << 20
	// DefaultTimeout bounds each renderer or download call.
	DefaultTimeout = 60 * time.Second

	maxErrorBody = 4 << 10
)

// ErrTooLarge is returned when a download exceeds the size cap.
var ErrTooLarge = errors.New("resume exceeds size limit")

// Options configures a Client.
type Options struct {
	RendererURL string
	HTTPClient  *http.Client
	MaxBytes    int64
	Logger      *slog.Logger
}

// Client renders resumes to PDF and downloads them.
type Client struct {
	rendererURL string
	httpClient  *http.Client
	maxBytes    int64
	logger      *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		rendererURL: opts.RendererURL,
		httpClient:  opts.HTTPClient,
		maxBytes:    opts.MaxBytes,
		logger:      logging.WithOperation(opts.Logger, "resume"),
	}
}

type renderRequest struct {
	ResumeID string `json:"resume_id"`
	Owner    string `json:"owner"`
}

type renderResponse struct {
	URL string `json:"url"`
}

// Render asks the renderer to produce the PDF of resumeID and returns the
// URL it was stored at.
func (c *Client) Render(ctx context.Context, owner, resumeID string) (string, error) {
	if c.rendererURL == "" {
		return "", errors.New("resume renderer URL is not configured")
	}
	payload, err := json.Marshal(renderRequest{ResumeID: resumeID, Owner: owner})
	if err != nil {
		return "", fmt.Errorf("encoding render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rendererURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", &apperr.TransportError{Op: "resume.render", Err: err}
	}
	defer res.Body.Close()
	if err := checkStatus("resume.render", res); err != nil {
		return "", err
	}

	var out renderResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxErrorBody)).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding render response: %w", err)
	}
	if out.URL == "" {
		return "", errors.New("renderer returned no url")
	}
	c.logger.Debug("resume rendered", slog.String("resume", resumeID))
	return out.URL, nil
}

// Download fetches url and returns at most the configured number of bytes.
// Larger documents fail with ErrTooLarge.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransportError{Op: "resume.download", Err: err}
	}
	defer res.Body.Close()
	if err := checkStatus("resume.download", res); err != nil {
		return nil, err
	}
	if res.ContentLength > c.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, res.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading resume: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.maxBytes)
	}
	return data, nil
}

func checkStatus(op string, res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	return &apperr.TransportError{Op: op, Status: res.StatusCode, Body: string(body)}
}
