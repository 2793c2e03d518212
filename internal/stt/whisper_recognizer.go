//go:build whisper

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-scribe/internal/audio"
)

const whisperSampleRate = 16000

type whisperRecognizer struct {
	model   whisper.Model
	decoder audio.Decoder
	threads int
	mu      sync.Mutex
}

// NewWhisperRecognizer loads a ggml model through the whisper.cpp bindings.
// The caller must Close it.
func NewWhisperRecognizer(modelPath string, decoder audio.Decoder, threads int) (Recognizer, error) {
	if decoder == nil {
		return nil, errors.New("whisper recognizer requires a decoder")
	}
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %q: %w", modelPath, err)
	}
	return &whisperRecognizer{model: model, decoder: decoder, threads: threads}, nil
}

func (r *whisperRecognizer) Recognize(ctx context.Context, req RecognizeRequest) ([]RawSegment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	waveform, err := r.decoder.Decode(ctx, req.AudioPath, whisperSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("decode audio for whisper: %w", err)
	}
	waveform = audio.Mono(waveform)

	wctx, err := r.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create whisper context: %w", err)
	}
	if req.Language != "" {
		if err := wctx.SetLanguage(req.Language); err != nil {
			return nil, fmt.Errorf("set whisper language %q: %w", req.Language, err)
		}
	}
	if r.threads > 0 {
		wctx.SetThreads(uint(r.threads))
	}

	if err := wctx.Process(waveform.Samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper process: %w", err)
	}

	var segments []RawSegment
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper next segment: %w", err)
		}
		segments = append(segments, RawSegment{
			T0:   centiseconds(seg.Start),
			T1:   centiseconds(seg.End),
			Text: seg.Text,
		})
	}
	return segments, nil
}

func (r *whisperRecognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

func centiseconds(d time.Duration) int64 {
	return int64(d / (10 * time.Millisecond))
}
