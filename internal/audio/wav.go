package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcm16Scale = 32767

// ReadWav loads a PCM wave file and normalizes its samples to [-1, 1].
func ReadWav(path string) (Waveform, error) {
	file, err := os.Open(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("open wav: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return Waveform{}, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("read wav pcm: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	norm := float32(int(1) << (bitDepth - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / norm
	}
	return Waveform{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// WriteWav stores the waveform as 16-bit PCM, clipping samples outside [-1, 1].
func WriteWav(path string, w Waveform) error {
	if w.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", w.SampleRate)
	}
	channels := w.Channels
	if channels <= 0 {
		channels = 1
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		v := math.Round(float64(s) * pcm16Scale)
		if v > pcm16Scale {
			v = pcm16Scale
		} else if v < -pcm16Scale-1 {
			v = -pcm16Scale - 1
		}
		data[i] = int(v)
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, w.SampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		file.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		return fmt.Errorf("close wav encoder: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close wav file: %w", err)
	}
	return nil
}

// Mono averages interleaved channels into a single channel.
func Mono(w Waveform) Waveform {
	if w.Channels <= 1 {
		w.Channels = 1
		return w
	}
	frames := len(w.Samples) / w.Channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < w.Channels; c++ {
			sum += w.Samples[i*w.Channels+c]
		}
		out[i] = sum / float32(w.Channels)
	}
	return Waveform{Samples: out, SampleRate: w.SampleRate, Channels: 1}
}
