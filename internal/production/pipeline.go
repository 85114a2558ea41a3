// Package production runs one calendar through upscaling, rendering and
// output, and records the outcome
package production

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/calendarpress/calendar-engine/internal/ledger"
	"github.com/calendarpress/calendar-engine/internal/output"
	"github.com/calendarpress/calendar-engine/internal/renderer"
	"github.com/calendarpress/calendar-engine/internal/telemetry"
	"github.com/calendarpress/calendar-engine/internal/upscale"
	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Outcome statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StageError reports which pipeline stage failed
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Outcome is the result of one Run
type Outcome struct {
	RenderID   string
	CalendarID string
	Status     string
	Files      []ledger.File
	Warnings   []string
	Err        error
	StartedAt  time.Time
	Duration   time.Duration
}

// Options configure a Pipeline
type Options struct {
	OutputDir    string
	WorkspaceDir string
	Output       output.Options
	PDFProof     bool
	Mode         calendarformat.Mode // overrides the description's mode when set
}

// Pipeline renders calendars into print files. Upscaler and Ledger are
// optional.
type Pipeline struct {
	opts     Options
	renderer *renderer.Renderer
	writer   *output.Writer
	upscaler upscale.Upscaler
	ledger   *ledger.Ledger
	metrics  *telemetry.Metrics
	log      *zap.Logger
	tracer   trace.Tracer
}

// New creates a pipeline
func New(opts Options, r *renderer.Renderer, w *output.Writer, up upscale.Upscaler, l *ledger.Ledger, metrics *telemetry.Metrics, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.WorkspaceDir == "" {
		opts.WorkspaceDir = os.TempDir()
	}
	return &Pipeline{
		opts:     opts,
		renderer: r,
		writer:   w,
		upscaler: up,
		ledger:   l,
		metrics:  metrics,
		log:      log.With(zap.String("component", "production")),
		tracer:   otel.Tracer("github.com/calendarpress/calendar-engine/internal/production"),
	}
}

// Run produces the files for cal. Failures are reported in the Outcome
// and recorded in the ledger rather than returned.
func (p *Pipeline) Run(ctx context.Context, cal *calendarformat.Calendar) Outcome {
	out := Outcome{
		RenderID:   uuid.New().String(),
		CalendarID: cal.ID,
		StartedAt:  time.Now(),
	}
	if out.CalendarID == "" {
		out.CalendarID = "calendar-" + out.RenderID[:8]
	}

	ctx, span := p.tracer.Start(ctx, "calendar.production", trace.WithAttributes(
		attribute.String("render.id", out.RenderID),
		attribute.String("calendar.id", out.CalendarID),
	))
	defer span.End()

	log := p.log.With(zap.String("render_id", out.RenderID), zap.String("calendar", out.CalendarID))
	log.Info("render started")

	out.Err = p.run(ctx, cal, &out, log)
	out.Duration = time.Since(out.StartedAt)

	if out.Err != nil {
		out.Status = StatusFailed
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
		log.Error("render failed", zap.Error(out.Err), zap.Duration("duration", out.Duration))
	} else {
		out.Status = StatusCompleted
		log.Info("render completed",
			zap.Int("files", len(out.Files)),
			zap.Int("warnings", len(out.Warnings)),
			zap.Duration("duration", out.Duration))
	}
	p.metrics.RecordRender(ctx, out.Status, out.Duration)
	p.record(out, log)

	return out
}

func (p *Pipeline) run(ctx context.Context, cal *calendarformat.Calendar, out *Outcome, log *zap.Logger) error {
	workspace := filepath.Join(p.opts.WorkspaceDir, out.RenderID)
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return &StageError{Stage: "workspace", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Warn("failed to remove workspace", zap.String("path", workspace), zap.Error(err))
		}
	}()

	job := *cal
	job.ID = out.CalendarID
	if p.opts.Mode != "" {
		job.Mode = p.opts.Mode
	}
	if job.Mode == "" {
		job.Mode = calendarformat.ModeSplit
	}

	p.enlarge(ctx, &job, workspace, out, log)

	comp, err := p.renderer.Render(ctx, &job)
	if err != nil {
		return &StageError{Stage: "render", Err: err}
	}
	out.Warnings = append(out.Warnings, comp.Warnings...)

	dir := filepath.Join(p.opts.OutputDir, safeName(out.CalendarID))
	for _, a := range artifacts(comp) {
		if err := p.write(ctx, a, dir, out); err != nil {
			return &StageError{Stage: "write", Err: err}
		}
	}
	return nil
}

// enlarge replaces remote header and background sources with upscaled
// local copies. A failed upscale keeps the original source.
func (p *Pipeline) enlarge(ctx context.Context, cal *calendarformat.Calendar, workspace string, out *Outcome, log *zap.Logger) {
	if p.upscaler == nil {
		return
	}

	try := func(role, src string) string {
		if !isRemote(src) {
			return src
		}
		res, err := p.upscaler.Upscale(ctx, src, workspace)
		if err != nil {
			log.Warn("upscale failed, using original", zap.String("role", role), zap.String("src", src), zap.Error(err))
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s upscale failed: %v", role, err))
			p.metrics.RecordFallback(ctx, "upscale", role)
			return src
		}
		log.Debug("source upscaled", zap.String("role", role), zap.String("path", res.LocalPath))
		return res.LocalPath
	}

	cal.HeaderImage = try("header", cal.HeaderImage)
	if bg, ok := cal.Background.(calendarformat.ImageBackground); ok {
		cal.Background = calendarformat.ImageBackground{Source: try("background", bg.Source)}
	}
}

type artifact struct {
	role string
	img  image.Image
}

func artifacts(c *renderer.Composite) []artifact {
	if c.Mode == calendarformat.ModeCombined {
		return []artifact{{"calendar", c.Combined}}
	}
	return []artifact{{"header", c.Header}, {"backing", c.Backing}}
}

func (p *Pipeline) write(ctx context.Context, a artifact, dir string, out *Outcome) error {
	opts := p.opts.Output
	if opts.Format == "" {
		opts.Format = output.FormatJPEG
	}

	res, err := p.writer.Write(ctx, a.img, filepath.Join(dir, a.role+opts.Format.Ext()), opts)
	if err != nil {
		return fmt.Errorf("%s: %w", a.role, err)
	}
	out.Files = append(out.Files, fileOf(a.role, res))
	if res.Fallback {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s written as %s", a.role, filepath.Base(res.Path)))
	}

	if !p.opts.PDFProof || opts.Format == output.FormatPDF {
		return nil
	}
	proof := output.Options{Format: output.FormatPDF, ColorSpace: output.ColorRGB, DPI: opts.DPI}
	res, err = p.writer.Write(ctx, a.img, filepath.Join(dir, a.role+"_proof.pdf"), proof)
	if err != nil {
		return fmt.Errorf("%s proof: %w", a.role, err)
	}
	out.Files = append(out.Files, fileOf(a.role+"_proof", res))
	return nil
}

func fileOf(role string, res *output.Result) ledger.File {
	return ledger.File{
		Role:       role,
		Path:       res.Path,
		Format:     string(res.Format),
		ColorSpace: string(res.ColorSpace),
		DPI:        res.DPI,
		WidthPx:    res.WidthPx,
		HeightPx:   res.HeightPx,
		WidthMM:    res.WidthMM,
		HeightMM:   res.HeightMM,
		Fallback:   res.Fallback,
	}
}

func (p *Pipeline) record(out Outcome, log *zap.Logger) {
	if p.ledger == nil {
		return
	}
	e := ledger.Entry{
		RenderID:   out.RenderID,
		CalendarID: out.CalendarID,
		Status:     out.Status,
		Files:      out.Files,
		Warnings:   out.Warnings,
		StartedAt:  out.StartedAt,
		Duration:   out.Duration,
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
		var se *StageError
		if errors.As(out.Err, &se) {
			e.Stage = se.Stage
		}
	}
	if err := p.ledger.Record(e); err != nil {
		log.Error("failed to record render", zap.Error(err))
	}
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeName turns a calendar ID into a directory name
func safeName(id string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(id, "_"), "._")
	if name == "" {
		return "calendar"
	}
	return name
}
