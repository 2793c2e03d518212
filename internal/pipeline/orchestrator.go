package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-scribe/internal/audio"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/entrystore"
	"github.com/loqalabs/loqa-scribe/internal/journal"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-scribe/internal/pipeline"

// entryDateLayout is ISO-8601 with microsecond precision.
const entryDateLayout = "2006-01-02T15:04:05.000000"

// State is a step of a single Process call.
type State string

const (
	StateInit         State = "INIT"
	StateCleaning     State = "CLEANING"
	StateTranscribing State = "TRANSCRIBING"
	StatePersisting   State = "PERSISTING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Publisher announces saved transcripts. *bus.Client satisfies it.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Summarizer produces the summary stored alongside an entry.
type Summarizer interface {
	Summarize(ctx context.Context, runID, text, language string) (string, error)
}

// Dependencies are the collaborators injected into an Orchestrator. Nil
// fields fall back to config-driven defaults or are skipped.
type Dependencies struct {
	Decoder         audio.Decoder
	DenoiserFactory audio.DenoiserFactory
	Recognizer      stt.Recognizer
	Journal         *journal.Journal
	Publisher       Publisher
	Summarizer      Summarizer
}

// Request describes one audio file to process.
type Request struct {
	AudioPath string
	Clean     bool
	Language  string
	Save      bool
	Date      string
	Tags      []string
}

// Result is the outcome of Process.
type Result struct {
	Text        string
	Segments    []stt.Segment
	Language    string
	CleanedPath string
	Saved       bool
	EntryID     string
	RunID       string
}

// Orchestrator runs clean, transcribe and persist for one audio file at a time.
type Orchestrator struct {
	cfg         config.Config
	cleaner     *audio.Cleaner
	transcriber *stt.Transcriber
	store       *entrystore.Store
	journal     *journal.Journal
	publisher   Publisher
	summarizer  Summarizer
	log         *slog.Logger
	now         func() time.Time

	tracer   trace.Tracer
	runs     metric.Int64Counter
	duration metric.Float64Histogram

	closeOnce sync.Once
}

// New builds the cleaner first and then the transcriber. A missing model is
// reported as domain.ErrNotFound after the cleaner directory is removed.
func New(cfg config.Config, deps Dependencies, log *slog.Logger) (*Orchestrator, error) {
	log = log.With(slog.String("component", "pipeline"))

	cleaner, err := audio.NewCleaner(cfg.Cleaner, deps.Decoder, deps.DenoiserFactory, log)
	if err != nil {
		return nil, fmt.Errorf("create cleaner: %w", err)
	}

	modelPath := stt.ResolveModelPath(cfg.STT.ModelDir, cfg.STT.ModelName)
	if err := stt.RequireModel(modelPath); err != nil {
		cleaner.Cleanup()
		return nil, err
	}

	recognizer := deps.Recognizer
	if recognizer == nil {
		recognizer, err = stt.NewRecognizer(cfg.STT, modelPath, deps.Decoder)
		if err != nil {
			cleaner.Cleanup()
			return nil, fmt.Errorf("create recognizer: %w", err)
		}
	}
	transcriber, err := stt.NewTranscriber(modelPath, recognizer)
	if err != nil {
		cleaner.Cleanup()
		return nil, err
	}

	o := &Orchestrator{
		cfg:         cfg,
		cleaner:     cleaner,
		transcriber: transcriber,
		store:       entrystore.New(cfg.Entries.Path, log),
		journal:     deps.Journal,
		publisher:   deps.Publisher,
		summarizer:  deps.Summarizer,
		log:         log,
		now:         time.Now,
		tracer:      otel.Tracer(instrumentationName),
	}
	o.initMetrics()

	log.Info("pipeline ready",
		slog.String("model", modelPath),
		slog.String("device", cleaner.Device()),
		slog.String("entries", o.store.Path()))
	return o, nil
}

func (o *Orchestrator) initMetrics() {
	meter := otel.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	runs, err := meter.Int64Counter("scribe_runs",
		metric.WithDescription("Completed pipeline runs by outcome"))
	if err != nil {
		o.log.Warn("runs counter unavailable", slog.String("error", err.Error()))
		runs, _ = fallback.Int64Counter("scribe_runs")
	}
	duration, err := meter.Float64Histogram("scribe_run_duration",
		metric.WithDescription("Pipeline run duration"),
		metric.WithUnit("s"))
	if err != nil {
		o.log.Warn("duration histogram unavailable", slog.String("error", err.Error()))
		duration, _ = fallback.Float64Histogram("scribe_run_duration")
	}
	o.runs = runs
	o.duration = duration
}

// Store exposes the entry document the orchestrator writes to.
func (o *Orchestrator) Store() *entrystore.Store {
	return o.store
}

// Process cleans (optionally), transcribes and saves (optionally) one file.
// Cleaning and transcription failures are returned. Persistence failures
// only clear Result.Saved.
func (o *Orchestrator) Process(ctx context.Context, req Request) (Result, error) {
	runID := uuid.NewString()
	language := req.Language
	if language == "" {
		language = o.cfg.STT.Language
	}
	log := o.log.With(slog.String("run_id", runID))

	ctx, span := o.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("audio_path", req.AudioPath),
		attribute.String("language", language),
		attribute.Bool("clean", req.Clean),
		attribute.Bool("save", req.Save),
	))
	defer span.End()

	start := time.Now()
	if err := o.journal.StartRun(ctx, runID, req.AudioPath, language); err != nil {
		log.Warn("journal start failed", slog.String("error", err.Error()))
	}
	o.transition(ctx, runID, StateInit, req.AudioPath, log)

	result, err := o.process(ctx, runID, language, req, log)
	result.RunID = runID

	status, outcome := journal.StatusSucceeded, "succeeded"
	if err != nil {
		status, outcome = journal.StatusFailed, "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.transition(ctx, runID, StateFailed, err.Error(), log)
		log.Error("pipeline run failed", slog.String("error", err.Error()))
	} else {
		o.transition(ctx, runID, StateDone, "", log)
	}
	if err := o.journal.FinishRun(ctx, runID, status); err != nil {
		log.Warn("journal finish failed", slog.String("error", err.Error()))
	}

	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("saved", result.Saved),
	)
	o.runs.Add(ctx, 1, attrs)
	o.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	return result, err
}

func (o *Orchestrator) process(ctx context.Context, runID, language string, req Request, log *slog.Logger) (Result, error) {
	result := Result{Language: language}

	audioPath := req.AudioPath
	if req.Clean {
		o.transition(ctx, runID, StateCleaning, req.AudioPath, log)
		stageCtx, span := o.tracer.Start(ctx, "pipeline.clean")
		cleaned, err := o.cleaner.Clean(stageCtx, req.AudioPath)
		endSpan(span, err)
		if err != nil {
			return result, err
		}
		result.CleanedPath = cleaned
		audioPath = cleaned
	}

	o.transition(ctx, runID, StateTranscribing, audioPath, log)
	stageCtx, span := o.tracer.Start(ctx, "pipeline.transcribe")
	transcript, err := o.transcriber.Transcribe(stageCtx, audioPath, language)
	endSpan(span, err)
	if err != nil {
		return result, err
	}
	result.Text = transcript.Text
	result.Segments = transcript.Segments
	log.Info("transcription complete",
		slog.Int("segments", len(transcript.Segments)),
		slog.Int("chars", len(transcript.Text)))

	if req.Save {
		o.transition(ctx, runID, StatePersisting, o.store.Path(), log)
		stageCtx, span := o.tracer.Start(ctx, "pipeline.persist")
		entry, err := o.persist(stageCtx, runID, language, req, transcript.Text, log)
		endSpan(span, err)
		if err != nil {
			log.Error("failed to save transcription", slog.String("error", err.Error()))
		} else {
			result.Saved = true
			result.EntryID = entry.ID
			o.announce(runID, entry, log)
		}
	}
	return result, nil
}

func (o *Orchestrator) persist(ctx context.Context, runID, language string, req Request, text string, log *slog.Logger) (entrystore.Entry, error) {
	if err := o.store.EnsureDocument(); err != nil {
		return entrystore.Entry{}, err
	}
	date := req.Date
	if date == "" {
		date = o.now().Format(entryDateLayout)
	}

	var summary string
	if o.summarizer != nil {
		s, err := o.summarizer.Summarize(ctx, runID, text, language)
		if err != nil {
			log.Warn("summary failed, saving without one", slog.String("error", err.Error()))
		} else {
			summary = s
		}
	}

	return o.store.AddEntry(ctx, entrystore.NewEntry{
		Transcription: text,
		Date:          date,
		Summary:       summary,
		Tags:          req.Tags,
		Language:      language,
	})
}

func (o *Orchestrator) announce(runID string, entry entrystore.Entry, log *slog.Logger) {
	if o.publisher == nil {
		return
	}
	subject := o.cfg.Bus.Subject
	if subject == "" {
		subject = protocol.SubjectTranscriptSaved
	}
	msg := protocol.TranscriptSaved{
		RunID:       runID,
		EntryID:     entry.ID,
		HasDateAsID: entry.HasDateAsID,
		Text:        entry.Transcription,
		Language:    entry.Language,
		Tags:        entry.Tags,
		Document:    o.store.Path(),
		Timestamp:   o.now().UTC(),
	}
	if err := o.publisher.PublishJSON(subject, msg); err != nil {
		log.Warn("failed to publish saved transcript", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) transition(ctx context.Context, runID string, state State, detail string, log *slog.Logger) {
	log.Debug("pipeline state", slog.String("state", string(state)), slog.String("detail", detail))
	if err := o.journal.Record(ctx, journal.Event{RunID: runID, Stage: string(state), Detail: detail}); err != nil {
		log.Warn("journal record failed", slog.String("state", string(state)), slog.String("error", err.Error()))
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Close removes the cleaner directory and releases the recognizer. Only the
// first call has any effect.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.cleaner.Cleanup()
		if err := o.transcriber.Close(); err != nil {
			o.log.Warn("recognizer close failed", slog.String("error", err.Error()))
		}
	})
}

// Run builds an Orchestrator, hands it to fn and closes it on every return path.
func Run(ctx context.Context, cfg config.Config, deps Dependencies, log *slog.Logger, fn func(*Orchestrator) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o, err := New(cfg, deps, log)
	if err != nil {
		return err
	}
	defer o.Close()
	return fn(o)
}
