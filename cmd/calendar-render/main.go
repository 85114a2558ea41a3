package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/calendarpress/calendar-engine/internal/config"
	"github.com/calendarpress/calendar-engine/internal/geometry"
	"github.com/calendarpress/calendar-engine/internal/job"
	"github.com/calendarpress/calendar-engine/internal/ledger"
	"github.com/calendarpress/calendar-engine/internal/logging"
	"github.com/calendarpress/calendar-engine/internal/output"
	"github.com/calendarpress/calendar-engine/internal/production"
	"github.com/calendarpress/calendar-engine/internal/renderer"
	"github.com/calendarpress/calendar-engine/internal/telemetry"
	"github.com/calendarpress/calendar-engine/internal/tui"
	"github.com/calendarpress/calendar-engine/internal/upscale"
	"github.com/calendarpress/calendar-engine/pkg/calendarformat"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	var configPath, envFile string
	flag.StringVar(&configPath, "config", "", "YAML config file")
	flag.StringVar(&configPath, "c", "", "YAML config file (short)")
	flag.StringVar(&envFile, "env", ".env", "dotenv file loaded before the config")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(2)
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", envFile, err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	switch args[0] {
	case "render":
		err = runRender(ctx, cfg, args[1:])
	case "batch":
		err = runBatch(ctx, cfg, args[1:])
	case "validate":
		err = runValidate(ctx, cfg, args[1:])
	case "presets":
		runPresets()
	case "fonts":
		runFonts(cfg, args[1:])
	case "key":
		err = runKey(args[1:])
	case "version":
		fmt.Println("calendar-render", Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		stop()
		fatalf("%v", err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Calendar Engine %s

Usage:
  calendar-render [flags] <command>

Flags:
  -c, -config <path>   YAML config file (CAL_* environment variables override it)
  -env <path>          dotenv file loaded first (default: .env)

Commands:
  render <description.json> [-preset name] [-mode split|combined] [-format jpeg|png|psd|pdf] [-out dir] [-proof]
    Render one calendar and print the written files

  batch <dir> [-workers n] [-plain]
    Render every *.json description in dir through the render queue.
    Shows a live monitor unless -plain is given.

  validate <description.json> [-assets]
    Check a description against the schema and the semantic rules.
    -assets also loads every referenced image and lists the unavailable ones.

  presets
    List the geometry presets with pixel and millimetre sizes

  fonts [name...]
    Show which tier and file each font name resolves to

  key set <api-key> | key clear
    Store or remove the upscaler API key in the OS keyring

Examples:
  calendar-render render ./orders/acme.json
  calendar-render -config prod.yaml render ./orders/acme.json -preset classic-300dpi -format psd
  calendar-render batch ./orders -workers 4
  calendar-render fonts Georgia "Comic Sans MS"

`, Version)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// parseInterspersed parses flags that may appear before or after the
// positional arguments
func parseInterspersed(flags *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := flags.Parse(args); err != nil {
			return nil, err
		}
		if flags.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, flags.Arg(0))
		args = flags.Args()[1:]
	}
}

// engine is the assembled render stack
type engine struct {
	log      *zap.Logger
	pipeline *production.Pipeline
	close    func()
}

func newEngine(ctx context.Context, cfg config.Config, quiet bool) (*engine, error) {
	logCfg := cfg.Logging
	logCfg.Quiet = quiet
	log, closeLog, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, log)
	if err != nil {
		closeLog()
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	fonts := renderer.NewFontResolver(cfg.Render.FontsDir, renderer.SystemFonts, log)
	fonts.OnFallback(func(res renderer.Resolution) {
		metrics.RecordFallback(context.Background(), "font", string(res.Tier))
	})

	rendererOpts, err := cfg.RendererOptions(metrics)
	if err != nil {
		closeLog()
		return nil, err
	}
	r := renderer.New(rendererOpts, fonts, renderer.NewLoader(cfg.Render.FetchTimeout, log), log)
	w := output.NewWriter(cfg.WriterOptions(), log, metrics)

	var up upscale.Upscaler
	if cfg.Upscale.Enabled {
		opts := cfg.UpscaleOptions()
		if opts.APIKey == "" {
			log.Warn("upscaling enabled without an api key, sources will be used as is")
		}
		up = upscale.NewClient(opts, log)
	}

	l, err := ledger.New(cfg.Ledger.Path)
	if err != nil {
		closeLog()
		return nil, err
	}

	p := production.New(production.Options{
		OutputDir:    cfg.Output.Dir,
		WorkspaceDir: cfg.Render.WorkspaceDir,
		Output:       cfg.OutputOptions(),
		PDFProof:     cfg.Output.PDFProof,
		Mode:         calendarformat.Mode(cfg.Render.Mode),
	}, r, w, up, l, metrics, log)

	log.Debug("engine ready",
		zap.String("preset", rendererOpts.Geometry.Name),
		zap.String("format", cfg.Output.Format),
		zap.String("psd_encoder", cfg.Output.PSDEncoder),
		zap.Bool("upscale", up != nil))

	return &engine{
		log:      log,
		pipeline: p,
		close: func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				log.Warn("telemetry shutdown failed", zap.Error(err))
			}
			closeLog()
		},
	}, nil
}

func runRender(ctx context.Context, cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("render", flag.ExitOnError)
	preset := flags.String("preset", "", "geometry preset")
	mode := flags.String("mode", "", "split or combined")
	format := flags.String("format", "", "jpeg, png, psd or pdf")
	outDir := flags.String("out", "", "output directory")
	proof := flags.Bool("proof", false, "also write RGB PDF proofs")

	positional, err := parseInterspersed(flags, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("render expects one description file")
	}

	if *preset != "" {
		cfg.Render.Preset = *preset
	}
	if *mode != "" {
		cfg.Render.Mode = *mode
	}
	if *format != "" {
		cfg.Output.Format = *format
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *proof {
		cfg.Output.PDFProof = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	cal, err := calendarformat.ParseFile(positional[0])
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer eng.close()

	out := eng.pipeline.Run(ctx, cal)
	printOutcome(positional[0], out)
	if out.Err != nil {
		return fmt.Errorf("render %s failed", out.CalendarID)
	}
	return nil
}

func runBatch(ctx context.Context, cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("batch", flag.ExitOnError)
	workers := flags.Int("workers", 0, "concurrent renders (default from config)")
	plain := flags.Bool("plain", false, "log progress instead of showing the monitor")

	positional, err := parseInterspersed(flags, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("batch expects one directory")
	}
	if *workers > 0 {
		cfg.Render.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(positional[0], "*.json"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fmt.Errorf("no *.json descriptions in %s", positional[0])
	}

	eng, err := newEngine(ctx, cfg, !*plain)
	if err != nil {
		return err
	}
	defer eng.close()

	queue := job.NewQueue(eng.pipeline, cfg.Render.Workers, eng.log)
	defer queue.Stop()

	var skipped []string
	for _, path := range files {
		cal, err := calendarformat.ParseFile(path)
		if err != nil {
			eng.log.Error("skipping invalid description", zap.String("file", path), zap.Error(err))
			skipped = append(skipped, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			continue
		}
		queue.Enqueue(path, cal)
	}

	if *plain {
		if err := queue.Wait(ctx); err != nil {
			eng.log.Warn("batch interrupted", zap.Error(err))
		}
	} else {
		monitor := tui.NewMonitor(queue, fmt.Sprintf("Calendar batch: %s", positional[0]))
		if err := monitor.Run(); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
	}
	queue.Stop()

	failed := 0
	for _, j := range queue.GetAllJobs() {
		if j.Status != job.StatusCompleted {
			failed++
		}
		printOutcome(j.Source, j.Outcome)
	}
	for _, s := range skipped {
		fmt.Println(errorStyle.Render("✗ skipped " + s))
	}

	if failed > 0 || len(skipped) > 0 {
		return fmt.Errorf("%d of %d calendars not rendered", failed+len(skipped), len(files))
	}
	return nil
}

var (
	okStyle    = lipgloss.NewStyle().Foreground(tui.Success)
	errorStyle = lipgloss.NewStyle().Foreground(tui.Error)
	warnStyle  = lipgloss.NewStyle().Foreground(tui.Warning)
	mutedStyle = lipgloss.NewStyle().Foreground(tui.Muted)
)

func printOutcome(source string, out production.Outcome) {
	switch {
	case out.RenderID == "":
		fmt.Println(warnStyle.Render("- " + source + " not rendered"))
		return
	case out.Err != nil:
		fmt.Println(errorStyle.Render(fmt.Sprintf("✗ %s (%s): %v", source, out.CalendarID, out.Err)))
	default:
		fmt.Println(okStyle.Render(fmt.Sprintf("✓ %s (%s) in %s", source, out.CalendarID, out.Duration.Truncate(time.Millisecond))))
	}

	for _, f := range out.Files {
		line := fmt.Sprintf("    %-14s %s  %dx%d px  %.1fx%.1f mm  %s %.0f dpi",
			f.Role, f.Path, f.WidthPx, f.HeightPx, f.WidthMM, f.HeightMM, f.ColorSpace, f.DPI)
		if f.Fallback {
			line += "  (fallback)"
		}
		fmt.Println(line)
	}
	for _, w := range out.Warnings {
		fmt.Println(warnStyle.Render("    ! " + w))
	}
}

func runValidate(ctx context.Context, cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("validate", flag.ContinueOnError)
	assets := flags.Bool("assets", false, "load every referenced image")
	positional, err := parseInterspersed(flags, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("validate expects one description file")
	}

	data, err := os.ReadFile(positional[0])
	if err != nil {
		return err
	}
	if err := calendarformat.ValidateJSON(data); err != nil {
		return err
	}
	cal, err := calendarformat.Parse(data)
	if err != nil {
		return err
	}

	fields := 0
	for _, s := range cal.Segments {
		fields += len(s.Fields)
	}
	fmt.Println(okStyle.Render(fmt.Sprintf("✓ %s is valid", positional[0])))
	fmt.Printf("    id %s, mode %s, background %s, %d fields, months %s / %s / %s\n",
		cal.ID, cal.Mode, calendarformat.KindOf(cal.Background), fields,
		cal.MonthLabel(0), cal.MonthLabel(1), cal.MonthLabel(2))

	if !*assets {
		return nil
	}
	refs := cal.AssetRefs()
	missing := renderer.NewLoader(cfg.Render.FetchTimeout, nil).Missing(ctx, refs)
	for _, ref := range missing {
		fmt.Println(warnStyle.Render("    ! image unavailable: " + ref))
	}
	fmt.Printf("    %d of %d images available\n", len(refs)-len(missing), len(refs))

	if bg, ok := cal.Background.(calendarformat.ImageBackground); ok {
		for _, ref := range missing {
			if ref == bg.Source {
				return fmt.Errorf("background image %s: %w", ref, renderer.ErrBackgroundUnavailable)
			}
		}
	}
	return nil
}

func runPresets() {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PRESET", "DPI", "HEADER PX", "HEADER MM", "BACKING PX", "BACKING MM")

	for _, name := range geometry.Names() {
		g, err := geometry.Preset(name)
		if err != nil {
			continue
		}
		t.Row(
			name,
			fmt.Sprintf("%.0f", g.DPI),
			fmt.Sprintf("%dx%d", g.HeaderWidth, g.HeaderHeight),
			fmt.Sprintf("%.0fx%.0f", geometry.PxToMM(g.HeaderWidth, g.DPI), geometry.PxToMM(g.HeaderHeight, g.DPI)),
			fmt.Sprintf("%dx%d", g.BackingWidth, g.BackingHeight()),
			fmt.Sprintf("%.0fx%.0f", geometry.PxToMM(g.BackingWidth, g.DPI), geometry.PxToMM(g.BackingHeight(), g.DPI)),
		)
	}
	fmt.Println(t.Render())
	fmt.Println(mutedStyle.Render("default: " + geometry.DefaultPreset))
}

func runFonts(cfg config.Config, names []string) {
	if len(names) == 0 {
		names = renderer.Families()
	}
	resolver := renderer.NewFontResolver(cfg.Render.FontsDir, renderer.SystemFonts, nil)

	for _, name := range names {
		res := resolver.Resolve(name)
		path := res.Path
		if path == "" {
			path = "(embedded Go Regular)"
		}
		style := okStyle
		if res.Tier != renderer.TierExact {
			style = warnStyle
		}
		fmt.Printf("%-20s %s  %s\n", name, style.Render(fmt.Sprintf("%-8s", res.Tier)), path)
	}
}

func runKey(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("key expects set <api-key> or clear")
	}
	switch args[0] {
	case "set":
		if len(args) != 2 || strings.TrimSpace(args[1]) == "" {
			return fmt.Errorf("key set expects the api key")
		}
		if err := config.SaveAPIKey(strings.TrimSpace(args[1])); err != nil {
			return fmt.Errorf("failed to store key: %w", err)
		}
		fmt.Println(okStyle.Render("✓ upscaler key stored in the keyring"))
	case "clear":
		if err := config.SaveAPIKey(""); err != nil {
			return fmt.Errorf("failed to remove key: %w", err)
		}
		fmt.Println(okStyle.Render("✓ upscaler key removed"))
	default:
		return fmt.Errorf("unknown key command: %s", args[0])
	}
	return nil
}
