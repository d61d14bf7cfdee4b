package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes an external tool and returns its stdout
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools from PATH
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// FFmpeg wraps the ffmpeg and ffprobe calls the pipeline needs
type FFmpeg struct {
	runner Runner
	log    *slog.Logger
}

func NewFFmpeg(runner Runner, log *slog.Logger) *FFmpeg {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFmpeg{runner: runner, log: log.With("component", "ffmpeg")}
}

// Duration returns the container duration of a media file in seconds
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	out, err := f.runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return secs, nil
}

// Trim copies at most secs seconds of input into output without re-encoding
func (f *FFmpeg) Trim(ctx context.Context, input, output string, secs int) error {
	f.log.Debug("trimming audio", "input", input, "seconds", secs)

	_, err := f.runner.Run(ctx, "ffmpeg",
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-t", strconv.Itoa(secs),
		"-c", "copy",
		output,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg trim: %w", err)
	}
	return nil
}

// DecodePCM decodes audio to mono float32 samples at sampleRate
func (f *FFmpeg) DecodePCM(ctx context.Context, path string, sampleRate int) ([]float32, error) {
	out, err := f.runner.Run(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "f32le",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}
	if len(out)%4 != 0 {
		return nil, fmt.Errorf("ffmpeg decode: truncated sample stream (%d bytes)", len(out))
	}

	samples := make([]float32, len(out)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
	}
	return samples, nil
}
