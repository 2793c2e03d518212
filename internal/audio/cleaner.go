package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/domain"
)

// CleanDirPrefix marks directories owned by a Cleaner. Cleanup refuses to
// remove anything without it.
const CleanDirPrefix = "transcribe_clean_"

// Cleaner decodes input audio to 16 kHz mono, denoises it and writes the
// result into a directory it owns until Cleanup.
type Cleaner struct {
	dir        string
	sampleRate int
	device     string
	denoising  bool
	decoder    Decoder
	denoiser   Denoiser
	log        *slog.Logger
}

// NewCleaner fixes the denoiser device and creates the owned output directory.
func NewCleaner(cfg config.CleanerConfig, decoder Decoder, newDenoiser DenoiserFactory, log *slog.Logger) (*Cleaner, error) {
	if decoder == nil {
		return nil, errors.New("cleaner requires a decoder")
	}
	if newDenoiser == nil {
		newDenoiser = DenoiserFromConfig(cfg.Denoiser)
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	device := ResolveDevice(cfg.Denoiser.Device, nil)
	denoiser, err := newDenoiser(device)
	if err != nil {
		return nil, fmt.Errorf("create denoiser: %w", err)
	}

	base := cfg.WorkDir
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(base, CleanDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("create clean dir: %w", err)
	}

	_, passthrough := denoiser.(PassthroughDenoiser)

	log = log.With(slog.String("component", "audio-cleaner"))
	if passthrough {
		log.Warn("no denoiser configured, cleaning only resamples to mono wav",
			slog.String("mode", cfg.Denoiser.Mode))
	}
	log.Debug("audio cleaner ready", slog.String("dir", dir), slog.String("device", device))

	return &Cleaner{
		dir:        dir,
		sampleRate: sampleRate,
		device:     device,
		denoising:  !passthrough,
		decoder:    decoder,
		denoiser:   denoiser,
		log:        log,
	}, nil
}

// Dir returns the owned output directory.
func (c *Cleaner) Dir() string {
	return c.dir
}

// Device returns the compute device chosen at construction.
func (c *Cleaner) Device() string {
	return c.device
}

// Denoising reports whether Clean runs a real denoiser rather than a passthrough copy.
func (c *Cleaner) Denoising() bool {
	return c.denoising
}

// Clean writes {stem}_cleaned.wav into the owned directory and returns its path.
func (c *Cleaner) Clean(ctx context.Context, inputPath string) (string, error) {
	if _, err := os.Stat(inputPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("audio file %s: %w", inputPath, domain.ErrNotFound)
		}
		return "", fmt.Errorf("%w: stat %s: %w", domain.ErrProcessing, inputPath, err)
	}

	waveform, err := c.decoder.Decode(ctx, inputPath, c.sampleRate, 1)
	if err != nil {
		return "", fmt.Errorf("%w: decode %s: %w", domain.ErrProcessing, inputPath, err)
	}
	waveform = Mono(waveform)

	denoised, err := c.denoiser.Denoise(ctx, waveform)
	if err != nil {
		return "", fmt.Errorf("%w: denoise %s: %w", domain.ErrProcessing, inputPath, err)
	}
	if len(denoised.Samples) != len(waveform.Samples) {
		return "", fmt.Errorf("%w: denoiser returned %d samples for %d", domain.ErrProcessing, len(denoised.Samples), len(waveform.Samples))
	}
	denoised.SampleRate = waveform.SampleRate
	denoised.Channels = 1

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outPath := filepath.Join(c.dir, stem+"_cleaned.wav")
	if err := WriteWav(outPath, denoised); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}

	c.log.Info("audio cleaned",
		slog.String("input", inputPath),
		slog.String("output", outPath),
		slog.Bool("denoised", c.denoising),
		slog.Float64("seconds", denoised.Duration()))
	return outPath, nil
}

// Cleanup removes the owned directory. It is safe to call more than once.
func (c *Cleaner) Cleanup() {
	if c == nil || c.dir == "" {
		return
	}
	if !strings.HasPrefix(filepath.Base(c.dir), CleanDirPrefix) {
		c.log.Warn("refusing to remove unowned directory", slog.String("dir", c.dir))
		return
	}
	if _, err := os.Stat(c.dir); err != nil {
		return
	}
	if err := os.RemoveAll(c.dir); err != nil {
		c.log.Warn("cleanup failed", slog.String("dir", c.dir), slog.String("error", err.Error()))
	}
}
