package audio

import "context"

// Waveform is mono or interleaved PCM normalized to [-1, 1].
type Waveform struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration reports the waveform length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 || w.Channels <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.Channels) / float64(w.SampleRate)
}

// Decoder turns an arbitrary audio container into PCM at the requested rate and channel count.
type Decoder interface {
	Decode(ctx context.Context, path string, sampleRate int, channels int) (Waveform, error)
}

// Denoiser removes background noise. The result must have the same shape as the input.
type Denoiser interface {
	Denoise(ctx context.Context, in Waveform) (Waveform, error)
}
