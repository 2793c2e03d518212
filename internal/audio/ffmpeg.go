package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegDecoder shells out to ffmpeg to produce 16-bit PCM at the requested
// rate and channel count.
type FFmpegDecoder struct {
	Binary string
}

func NewFFmpegDecoder(binary string) *FFmpegDecoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegDecoder{Binary: binary}
}

func (d *FFmpegDecoder) Decode(ctx context.Context, path string, sampleRate int, channels int) (Waveform, error) {
	if _, err := exec.LookPath(d.Binary); err != nil {
		return Waveform{}, fmt.Errorf("looking for `%s`: %w", d.Binary, err)
	}

	tmp, err := os.CreateTemp("", "loqa_scribe_decode_*.wav")
	if err != nil {
		return Waveform{}, fmt.Errorf("temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(ctx, d.Binary,
		"-y", "-i", path,
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-acodec", "pcm_s16le",
		"-f", "wav",
		tmpPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Waveform{}, fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}

	return ReadWav(tmpPath)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
