//go:build !whisper

package stt

import (
	"errors"

	"github.com/loqalabs/loqa-scribe/internal/audio"
)

// NewWhisperRecognizer is unavailable without cgo bindings; build with
// -tags whisper against libwhisper, or set stt.mode to exec.
func NewWhisperRecognizer(modelPath string, _ audio.Decoder, _ int) (Recognizer, error) {
	return nil, errors.New("whisper backend not compiled in (rebuild with -tags whisper) for model " + modelPath)
}
