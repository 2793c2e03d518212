package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/domain"
	"github.com/shopspring/decimal"
)

// Segment is a timestamped span of recognized speech, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptResult captures a full recognition pass.
type TranscriptResult struct {
	Text     string
	Segments []Segment
	Language string
}

// Transcriber validates inputs and normalizes recognizer output.
type Transcriber struct {
	modelPath  string
	recognizer Recognizer
}

// NewTranscriber fails with ErrModelNotFound when the model file is absent.
func NewTranscriber(modelPath string, recognizer Recognizer) (*Transcriber, error) {
	if err := RequireModel(modelPath); err != nil {
		return nil, err
	}
	if recognizer == nil {
		return nil, errors.New("transcriber requires a recognizer")
	}
	return &Transcriber{modelPath: modelPath, recognizer: recognizer}, nil
}

func (t *Transcriber) ModelPath() string {
	return t.modelPath
}

// Transcribe runs the recognizer with the language hint and joins the trimmed
// segment texts with single spaces.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string, language string) (TranscriptResult, error) {
	if err := mustExist(audioPath, "audio file"); err != nil {
		return TranscriptResult{}, err
	}

	raw, err := t.recognizer.Recognize(ctx, RecognizeRequest{
		AudioPath: audioPath,
		ModelPath: t.modelPath,
		Language:  language,
	})
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("recognize %s: %w", audioPath, err)
	}

	segments := make([]Segment, len(raw))
	texts := make([]string, len(raw))
	for i, s := range raw {
		text := strings.TrimSpace(s.Text)
		segments[i] = Segment{
			Start: centisecondsToSeconds(s.T0),
			End:   centisecondsToSeconds(s.T1),
			Text:  text,
		}
		texts[i] = text
	}

	return TranscriptResult{
		Text:     strings.Join(texts, " "),
		Segments: segments,
		Language: language,
	}, nil
}

// Close releases the recognizer when it holds native resources.
func (t *Transcriber) Close() error {
	if c, ok := t.recognizer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ErrModelNotFound marks a missing model file. It matches domain.ErrNotFound.
var ErrModelNotFound = fmt.Errorf("whisper model %w", domain.ErrNotFound)

// RequireModel reports ErrModelNotFound when modelPath does not exist.
func RequireModel(modelPath string) error {
	if _, err := os.Stat(modelPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", modelPath, ErrModelNotFound)
		}
		return fmt.Errorf("stat whisper model %s: %w", modelPath, err)
	}
	return nil
}

func centisecondsToSeconds(cs int64) float64 {
	return decimal.New(cs, -2).InexactFloat64()
}

func mustExist(path, what string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s %s: %w", what, path, domain.ErrNotFound)
		}
		return fmt.Errorf("stat %s %s: %w", what, path, err)
	}
	return nil
}
