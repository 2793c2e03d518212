package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-scribe/internal/audio"
	"github.com/loqalabs/loqa-scribe/internal/config"
)

// RawSegment is a recognizer segment with engine-native timestamps in centiseconds.
type RawSegment struct {
	T0   int64  `json:"t0"`
	T1   int64  `json:"t1"`
	Text string `json:"text"`
}

// RecognizeRequest names the audio to recognize and the language hint.
type RecognizeRequest struct {
	AudioPath string
	ModelPath string
	Language  string
}

// Recognizer abstracts offline STT engines.
type Recognizer interface {
	Recognize(ctx context.Context, req RecognizeRequest) ([]RawSegment, error)
}

// NewRecognizer builds the backend named by cfg.Mode. The whisper backend
// loads modelPath eagerly and decodes input through decoder.
func NewRecognizer(cfg config.STTConfig, modelPath string, decoder audio.Decoder) (Recognizer, error) {
	switch cfg.Mode {
	case "whisper":
		return NewWhisperRecognizer(modelPath, decoder, cfg.Threads)
	case "exec":
		return NewExecRecognizer(cfg.Command)
	case "mock":
		return NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}
