package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/mattn/go-shellwords"
)

// DenoiserFactory builds a denoiser bound to a compute device.
type DenoiserFactory func(device string) (Denoiser, error)

// DenoiserFromConfig selects the denoiser backend named by cfg.Mode.
func DenoiserFromConfig(cfg config.DenoiserConfig) DenoiserFactory {
	return func(device string) (Denoiser, error) {
		switch cfg.Mode {
		case "exec":
			return NewExecDenoiser(cfg.Command, device)
		case "passthrough", "":
			return PassthroughDenoiser{}, nil
		default:
			return nil, fmt.Errorf("unknown denoiser mode %q", cfg.Mode)
		}
	}
}

// ResolveDevice maps "auto" to cuda when an NVIDIA driver is visible, cpu otherwise.
func ResolveDevice(requested string, lookPath func(string) (string, error)) string {
	switch requested {
	case "cpu", "cuda":
		return requested
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath("nvidia-smi"); err == nil {
		return "cuda"
	}
	return "cpu"
}

// PassthroughDenoiser returns a copy of its input.
type PassthroughDenoiser struct{}

func (PassthroughDenoiser) Denoise(_ context.Context, in Waveform) (Waveform, error) {
	out := in
	out.Samples = append([]float32(nil), in.Samples...)
	return out, nil
}

// ExecDenoiser runs an external denoising model over a wave file:
//
//	<command> --input in.wav --output out.wav --sample-rate N --device D
type ExecDenoiser struct {
	cmd    []string
	device string
	mu     sync.Mutex
}

func NewExecDenoiser(command string, device string) (*ExecDenoiser, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse denoiser command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("denoiser command is empty")
	}
	return &ExecDenoiser{cmd: args, device: device}, nil
}

func (d *ExecDenoiser) Device() string {
	return d.device
}

func (d *ExecDenoiser) Denoise(ctx context.Context, in Waveform) (Waveform, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dir, err := os.MkdirTemp("", "loqa_scribe_denoise_*")
	if err != nil {
		return Waveform{}, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "in.wav")
	outPath := filepath.Join(dir, "out.wav")
	if err := WriteWav(inPath, in); err != nil {
		return Waveform{}, err
	}

	args := append([]string{}, d.cmd[1:]...)
	args = append(args,
		"--input", inPath,
		"--output", outPath,
		"--sample-rate", strconv.Itoa(in.SampleRate),
		"--device", d.device,
	)
	command := exec.CommandContext(ctx, d.cmd[0], args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return Waveform{}, fmt.Errorf("denoiser command failed: %w: %s", err, stderr.String())
	}

	out, err := ReadWav(outPath)
	if err != nil {
		return Waveform{}, fmt.Errorf("read denoised audio: %w", err)
	}
	if len(out.Samples) != len(in.Samples) {
		return Waveform{}, fmt.Errorf("denoiser changed waveform length from %d to %d", len(in.Samples), len(out.Samples))
	}
	return out, nil
}
