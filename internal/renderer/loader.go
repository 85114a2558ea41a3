package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultFetchTimeout bounds every remote asset download
const DefaultFetchTimeout = 30 * time.Second

// ErrAssetNotFound is returned when a reference points at nothing
var ErrAssetNotFound = errors.New("asset not found")

// AssetResolver turns an asset reference (URL or path) into an image
type AssetResolver interface {
	Resolve(ctx context.Context, ref string) (image.Image, error)
}

// Loader fetches images over HTTP(S) or from disk
type Loader struct {
	client *http.Client
	log    *zap.Logger
}

// NewLoader creates a loader whose downloads time out after timeout
func NewLoader(timeout time.Duration, log *zap.Logger) *Loader {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		client: &http.Client{Timeout: timeout},
		log:    log.With(zap.String("component", "loader")),
	}
}

// Resolve implements AssetResolver
func (l *Loader) Resolve(ctx context.Context, ref string) (image.Image, error) {
	img, err := l.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Load returns the decoded image or nil when it cannot be obtained.
// The reason is logged.
func (l *Loader) Load(ctx context.Context, ref string) *image.NRGBA {
	img, err := l.Fetch(ctx, ref)
	if err != nil {
		l.log.Warn("image unavailable", zap.String("ref", ref), zap.Error(err))
		return nil
	}
	return img
}

// Missing returns the refs Load cannot obtain, in order
func (l *Loader) Missing(ctx context.Context, refs []string) []string {
	var missing []string
	for _, ref := range refs {
		if l.Load(ctx, ref) == nil {
			missing = append(missing, ref)
		}
	}
	return missing
}

// Fetch decodes the image behind ref into an alpha-capable buffer
func (l *Loader) Fetch(ctx context.Context, ref string) (*image.NRGBA, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty reference: %w", ErrAssetNotFound)
	}

	var (
		img image.Image
		err error
	)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		img, err = l.fetchRemote(ctx, ref)
	} else {
		img, err = l.fetchLocal(ref)
	}
	if err != nil {
		return nil, err
	}

	return imaging.Clone(img), nil
}

func (l *Loader) fetchRemote(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", url, ErrAssetNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return img, nil
}

func (l *Loader) fetchLocal(ref string) (image.Image, error) {
	path := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(ref, "file://")))

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrAssetNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
