package media

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultFPS is used when the audio duration is unknown
	DefaultFPS = 24.0

	placeholderWidth  = 896
	placeholderHeight = 1152
)

// Video is an assembled, muxed output file
type Video struct {
	Path       string
	FPS        float64
	ImageCount int
	// Degraded is set when no images were available and a placeholder frame was used
	Degraded bool
}

// FrameRate spreads n images evenly over duration seconds
func FrameRate(n int, duration float64) float64 {
	if n <= 0 {
		return 1
	}
	if duration <= 0 {
		return DefaultFPS
	}
	return float64(n) / duration
}

// Assembler turns an ordered image sequence and one audio track into an mp4
type Assembler struct {
	runner  Runner
	tempDir string
	log     *slog.Logger
}

func NewAssembler(runner Runner, tempDir string, log *slog.Logger) *Assembler {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Assembler{runner: runner, tempDir: tempDir, log: log.With("component", "assembler")}
}

// Assemble writes a new video whose length matches duration. Inputs are never
// modified. With no images a black placeholder frame is shown at 1 fps.
func (a *Assembler) Assemble(ctx context.Context, audioPath string, images []string, duration float64) (*Video, error) {
	workDir, err := os.MkdirTemp(a.tempDir, "assemble-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	out, err := os.CreateTemp(a.tempDir, "video-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	outPath := out.Name()
	out.Close()

	video := &Video{Path: outPath, ImageCount: len(images)}
	var args []string

	if len(images) == 0 {
		placeholder := filepath.Join(workDir, "placeholder.png")
		if err := writePlaceholder(placeholder); err != nil {
			os.Remove(outPath)
			return nil, err
		}
		video.FPS = 1
		video.Degraded = true
		a.log.Warn("no images available, using placeholder frame", "audio", audioPath)

		args = []string{
			"-y", "-hide_banner", "-loglevel", "error",
			"-loop", "1",
			"-framerate", "1",
			"-i", placeholder,
			"-i", audioPath,
			"-c:v", "libx264",
			"-tune", "stillimage",
			"-pix_fmt", "yuv420p",
			"-c:a", "aac",
			"-shortest",
			outPath,
		}
	} else {
		pattern, err := stageFrames(workDir, images)
		if err != nil {
			os.Remove(outPath)
			return nil, err
		}
		video.FPS = FrameRate(len(images), duration)

		args = []string{
			"-y", "-hide_banner", "-loglevel", "error",
			"-framerate", strconv.FormatFloat(video.FPS, 'f', 6, 64),
			"-i", pattern,
			"-i", audioPath,
			"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
			"-c:a", "aac",
		}
		if duration > 0 {
			args = append(args, "-t", strconv.FormatFloat(duration, 'f', 3, 64))
		}
		args = append(args, outPath)
	}

	a.log.Info("assembling video", "images", len(images), "fps", video.FPS, "duration", duration)

	if _, err := a.runner.Run(ctx, "ffmpeg", args...); err != nil {
		os.Remove(outPath)
		return nil, fmt.Errorf("ffmpeg assemble: %w", err)
	}
	return video, nil
}

// stageFrames links the images into dir as a numbered sequence and returns
// the ffmpeg input pattern. The sequence uses the first image's extension.
func stageFrames(dir string, images []string) (string, error) {
	ext := strings.ToLower(filepath.Ext(images[0]))
	if ext == "" {
		ext = ".jpg"
	}

	for i, src := range images {
		dst := filepath.Join(dir, fmt.Sprintf("img_%04d%s", i, ext))
		if err := linkOrCopy(src, dst); err != nil {
			return "", fmt.Errorf("stage frame %d: %w", i, err)
		}
	}
	return filepath.Join(dir, "img_%04d"+ext), nil
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writePlaceholder(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create placeholder: %w", err)
	}
	img := image.NewGray(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode placeholder: %w", err)
	}
	return f.Close()
}
