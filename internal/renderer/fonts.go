package renderer

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Tier records how a font name was satisfied
type Tier string

const (
	TierExact    Tier = "exact"    // the mapped file for the requested family
	TierDefault  Tier = "default"  // the bundled Arial file
	TierSystem   Tier = "system"   // a platform font
	TierEmbedded Tier = "embedded" // Go Regular compiled into the binary
)

// DefaultFamily is the bundled family used when a requested one is missing
const DefaultFamily = "Arial"

var fontFiles = map[string]string{
	"arial":       "arial.ttf",
	"courier new": "cour.ttf",
	"georgia":     "georgia.ttf",
	"tahoma":      "tahoma.ttf",
	"verdana":     "verdana.ttf",
	"roboto":      "Roboto-Regular.ttf",
}

// SystemFonts are probed in order when the fonts dir cannot serve a family
var SystemFonts = []string{
	"/System/Library/Fonts/Supplemental/Arial.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
	"C:\\Windows\\Fonts\\arial.ttf",
}

// Resolution is the outcome of resolving a logical font name
type Resolution struct {
	Name string
	Path string // empty for the embedded font
	Tier Tier
}

// FontResolver maps logical family names to parsed fonts, falling back
// through the tiers until one loads. Safe for concurrent use.
type FontResolver struct {
	dir        string
	system     []string
	log        *zap.Logger
	onFallback func(Resolution)

	mu       sync.RWMutex
	fonts    map[string]*truetype.Font
	resolved map[string]Resolution
}

// NewFontResolver creates a resolver reading bundled fonts from dir.
// A nil system list disables the platform tier.
func NewFontResolver(dir string, system []string, log *zap.Logger) *FontResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &FontResolver{
		dir:      dir,
		system:   system,
		log:      log.With(zap.String("component", "fonts")),
		fonts:    make(map[string]*truetype.Font),
		resolved: make(map[string]Resolution),
	}
}

// OnFallback registers a hook called once per family that resolves below
// the exact tier
func (r *FontResolver) OnFallback(fn func(Resolution)) {
	r.mu.Lock()
	r.onFallback = fn
	r.mu.Unlock()
}

// Families lists the logical names with a bundled file mapping
func Families() []string {
	return []string{"Arial", "Courier New", "Georgia", "Tahoma", "Verdana", "Roboto"}
}

// Resolve reports which tier and file serve name
func (r *FontResolver) Resolve(name string) Resolution {
	_, res := r.Font(name)
	return res
}

// Font returns the parsed font for name. It never fails: the embedded
// face is the last resort.
func (r *FontResolver) Font(name string) (*truetype.Font, Resolution) {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	res, ok := r.resolved[key]
	if ok {
		f := r.fonts[res.Path]
		r.mu.RUnlock()
		return f, res
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.resolved[key]; ok {
		return r.fonts[res.Path], res
	}

	for _, c := range r.candidates(key) {
		f, err := r.load(c.Path)
		if err != nil {
			if c.Tier != TierSystem {
				r.log.Debug("font candidate unusable", zap.String("path", c.Path), zap.Error(err))
			}
			continue
		}
		c.Name = name
		r.remember(key, c)
		return f, c
	}

	f, _ := r.load("")
	res = Resolution{Name: name, Tier: TierEmbedded}
	r.remember(key, res)
	return f, res
}

// Face builds a face for name at size pixels
func (r *FontResolver) Face(name string, size float64) (font.Face, *truetype.Font) {
	f, _ := r.Font(name)
	return newFace(f, size), f
}

func newFace(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

func (r *FontResolver) candidates(key string) []Resolution {
	var out []Resolution
	if file, ok := fontFiles[key]; ok && r.dir != "" {
		out = append(out, Resolution{Path: filepath.Join(r.dir, file), Tier: TierExact})
	}
	if key != strings.ToLower(DefaultFamily) && r.dir != "" {
		out = append(out, Resolution{Path: filepath.Join(r.dir, fontFiles["arial"]), Tier: TierDefault})
	}
	for _, p := range r.system {
		if _, err := os.Stat(p); err == nil {
			out = append(out, Resolution{Path: p, Tier: TierSystem})
		}
	}
	return out
}

// remember caches a resolution and reports fallbacks. Caller holds mu.
func (r *FontResolver) remember(key string, res Resolution) {
	r.resolved[key] = res
	if res.Tier == TierExact {
		return
	}
	r.log.Warn("font fallback",
		zap.String("font", res.Name),
		zap.String("tier", string(res.Tier)),
		zap.String("path", res.Path))
	if r.onFallback != nil {
		r.onFallback(res)
	}
}

// load parses and caches the font at path; "" is the embedded font.
// Caller holds mu.
func (r *FontResolver) load(path string) (*truetype.Font, error) {
	if f, ok := r.fonts[path]; ok {
		return f, nil
	}

	var data []byte
	if path == "" {
		data = goregular.TTF
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}

	f, err := truetype.Parse(data)
	if err != nil {
		return nil, err
	}
	r.fonts[path] = f
	return f, nil
}
