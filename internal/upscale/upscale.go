// Package upscale enlarges source images through a remote service before
// they are composed at print resolution
package upscale

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout = 2 * time.Minute
	filePrefix     = "enlarged_image_"
	fileSuffix     = ".png"
)

// ErrNoAPIKey is returned when the client has no key to authenticate with
var ErrNoAPIKey = errors.New("upscaler api key not configured")

// Result is an enlarged image: where the service published it and where
// it was saved locally
type Result struct {
	EnlargedURL string
	LocalPath   string
}

// Upscaler enlarges the image at url and stores the result in dir
type Upscaler interface {
	Upscale(ctx context.Context, url, dir string) (Result, error)
}

// Options configure the HTTP client
type Options struct {
	Endpoint string
	APIKey   string
	Style    string // art or photo
	Noise    int    // -1 none .. 3 highest
	Factor   int    // 2, 4, 8 or 16
	Timeout  time.Duration
}

// Client posts one enlarge request and downloads the result. It does not
// poll or retry.
type Client struct {
	opts Options
	http *http.Client
	log  *zap.Logger
}

// NewClient creates an upscaler client
func NewClient(opts Options, log *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Style == "" {
		opts.Style = "art"
	}
	if opts.Factor == 0 {
		opts.Factor = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
		log:  log.With(zap.String("component", "upscale")),
	}
}

type enlargeRequest struct {
	Style  string `json:"style"`
	Noise  int    `json:"noise"`
	Factor int    `json:"x2"`
	Input  string `json:"input"`
}

type enlargeResponse struct {
	Status string `json:"status"`
	URL    string `json:"url"`
	Error  string `json:"error,omitempty"`
}

// Upscale implements Upscaler
func (c *Client) Upscale(ctx context.Context, url, dir string) (Result, error) {
	if c.opts.APIKey == "" {
		return Result{}, ErrNoAPIKey
	}

	body, err := json.Marshal(enlargeRequest{
		Style:  c.opts.Style,
		Noise:  c.opts.Noise,
		Factor: factorCode(c.opts.Factor),
		Input:  url,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("enlarge request failed: %w", err)
	}
	defer resp.Body.Close()

	var out enlargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("failed to decode enlarge response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || out.URL == "" {
		msg := out.Error
		if msg == "" {
			msg = out.Status
		}
		return Result{}, fmt.Errorf("enlarge failed with status %d: %s", resp.StatusCode, msg)
	}

	path, err := nextPath(dir)
	if err != nil {
		return Result{}, err
	}
	if err := c.download(ctx, out.URL, path); err != nil {
		return Result{}, err
	}

	c.log.Info("image enlarged", zap.String("source", url), zap.String("path", path))
	return Result{EnlargedURL: out.URL, LocalPath: path}, nil
}

func (c *Client) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return f.Close()
}

// nextPath numbers enlarged files after the highest one already in dir
func nextPath(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	next := 1
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err == nil && n >= next {
			next = n + 1
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s%d%s", filePrefix, next, fileSuffix)), nil
}

// factorCode maps an enlargement factor to the service's x2 code
func factorCode(factor int) int {
	switch factor {
	case 2:
		return 1
	case 8:
		return 3
	case 16:
		return 4
	}
	return 2
}
