package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/audio"
	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/domain"
	"github.com/loqalabs/loqa-scribe/internal/entrystore"
	"github.com/loqalabs/loqa-scribe/internal/journal"
	"github.com/loqalabs/loqa-scribe/internal/llm"
	"github.com/loqalabs/loqa-scribe/internal/pipeline"
	"github.com/loqalabs/loqa-scribe/internal/stt"
	"github.com/loqalabs/loqa-scribe/internal/telemetry"
)

var version = "0.1.0-dev"

const (
	defaultConfigPath = "loqa-scribe.yaml"
	modelsURL         = "https://huggingface.co/ggerganov/whisper.cpp/tree/main"
)

type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error {
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*s = append(*s, p)
		}
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "expected 'transcribe', 'models', 'entries' or 'version'")
		return 2
	}

	var err error
	switch args[0] {
	case "transcribe":
		err = runTranscribe(args[1:], stdout, stderr)
	case "models":
		err = runModels(args[1:], stdout, stderr)
	case "entries":
		err = runEntries(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return 2
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// loadConfig treats the default config path as optional and an explicit one as required.
func loadConfig(path string) (config.Config, error) {
	return config.Load(path, path != defaultConfigPath)
}

func runTranscribe(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("transcribe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath string
		model      string
		language   string
		date       string
		noClean    bool
		noSave     bool
		tags       stringSlice
	)
	fs.StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	fs.StringVar(&model, "model", "", "Whisper model file name (default from config, ggml-tiny.bin)")
	fs.StringVar(&language, "language", "", "Language code for transcription (default from config, de)")
	fs.StringVar(&date, "date", "", "ISO-8601 date used as entry id (default now)")
	fs.BoolVar(&noClean, "no-clean", false, "Skip audio noise reduction")
	fs.BoolVar(&noSave, "no-save", false, "Don't save the transcription to the entry document")
	fs.Var(&tags, "tag", "Tag for the saved entry (repeatable, comma separated)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("transcribe expects exactly one audio file")
	}
	audioPath := fs.Arg(0)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if model != "" {
		cfg.STT.ModelName = model
	}
	if language != "" {
		cfg.STT.Language = language
	}

	if _, err := os.Stat(audioPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("audio file %s: %w", audioPath, domain.ErrNotFound)
		}
		return fmt.Errorf("stat audio file %s: %w", audioPath, err)
	}

	logger := telemetry.NewLogger(stderr, cfg.Telemetry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	deps, closeDeps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	req := pipeline.Request{
		AudioPath: audioPath,
		Clean:     !noClean,
		Language:  cfg.STT.Language,
		Save:      !noSave,
		Date:      date,
		Tags:      tags,
	}

	fmt.Fprintf(stdout, "Processing: %s\n", audioPath)
	fmt.Fprintf(stdout, "Model: %s\n", cfg.STT.ModelName)
	fmt.Fprintf(stdout, "Noise reduction: %s\n", noiseReduction(req.Clean, cfg.Cleaner.Denoiser.Mode))
	fmt.Fprintf(stdout, "Language: %s\n", req.Language)
	fmt.Fprintln(stdout, strings.Repeat("-", 40))

	err = pipeline.Run(ctx, cfg, deps, logger, func(o *pipeline.Orchestrator) error {
		res, err := o.Process(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, "\nTranscription:")
		fmt.Fprintln(stdout, res.Text)
		fmt.Fprintln(stdout, strings.Repeat("-", 40))
		if res.CleanedPath != "" {
			fmt.Fprintf(stdout, "Cleaned audio written to: %s\n", res.CleanedPath)
		}
		if res.Saved {
			fmt.Fprintf(stdout, "Transcription saved to %s (id %s)\n", o.Store().Path(), res.EntryID)
		} else if req.Save {
			fmt.Fprintln(stdout, "Transcription was not saved, see log for details")
		}
		return nil
	})
	if errors.Is(err, stt.ErrModelNotFound) {
		fmt.Fprintf(stderr, "Available models are listed by 'loqa-scribe models'. Download models from: %s\n", modelsURL)
	}
	return err
}

// buildDependencies opens the optional journal, bus and summarizer. The
// returned closer releases whatever was opened.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (pipeline.Dependencies, func(), error) {
	deps := pipeline.Dependencies{
		Decoder: audio.NewFFmpegDecoder(cfg.Cleaner.FFmpegPath),
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	j, err := journal.Open(ctx, cfg.Journal, logger.With(slog.String("component", "journal")))
	if err != nil {
		return deps, closeAll, fmt.Errorf("open journal: %w", err)
	}
	closers = append(closers, func() {
		if err := j.Close(); err != nil {
			logger.Warn("journal close error", slog.String("error", err.Error()))
		}
	})
	deps.Journal = j

	if cfg.Bus.Enabled {
		client, err := bus.Connect(cfg.Bus, logger.With(slog.String("component", "bus")))
		if err != nil {
			logger.Warn("bus unavailable, saved transcripts will not be announced", slog.String("error", err.Error()))
		} else {
			closers = append(closers, client.Close)
			deps.Publisher = client
		}
	}

	if cfg.Summary.Enabled {
		gen, err := llm.NewGenerator(cfg.Summary)
		if err != nil {
			closeAll()
			return deps, func() {}, fmt.Errorf("create summary generator: %w", err)
		}
		deps.Summarizer = llm.NewSummarizer(cfg.Summary, gen, logger)
	}

	return deps, closeAll, nil
}

func runModels(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	models, err := stt.ListModels(cfg.STT.ModelDir, cfg.STT.ModelExt)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		fmt.Fprintf(stdout, "No whisper models found in %s\n", cfg.STT.ModelDir)
		fmt.Fprintf(stdout, "Download models from: %s\n", modelsURL)
		return nil
	}
	fmt.Fprintln(stdout, "Available whisper models:")
	for _, m := range models {
		fmt.Fprintf(stdout, "  - %s\n", m)
	}
	return nil
}

func runEntries(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("entries", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(stderr, cfg.Telemetry)
	entries, err := entrystore.New(cfg.Entries.Path, logger).Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(stdout, "No entries in %s\n", cfg.Entries.Path)
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLANGUAGE\tTAGS\tTRANSCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Language, strings.Join(e.Tags, ","), preview(e.Transcription, 60))
	}
	return tw.Flush()
}

func preview(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

func noiseReduction(clean bool, denoiserMode string) string {
	switch {
	case !clean:
		return "disabled"
	case denoiserMode == "passthrough":
		return "enabled (passthrough, no denoiser configured)"
	default:
		return "enabled"
	}
}
