package media

import (
	"context"
	"math"
)

const (
	// AnalysisSampleRate is the rate audio is decoded at for beat detection
	AnalysisSampleRate = 22050

	beatFrameSize     = 512
	beatThresholdStd  = 0.5
	minBeatSeparation = 0.2 // seconds
)

// DetectBeats returns onset times in seconds. A frame is an onset when its
// energy rise over the previous frame exceeds mean + 0.5 std of all rises.
// Onsets closer than 200ms to the previous one are ignored.
func DetectBeats(samples []float32, sampleRate int) []float64 {
	if sampleRate <= 0 || len(samples) < 2*beatFrameSize {
		return nil
	}

	frames := len(samples) / beatFrameSize
	energy := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for _, s := range samples[i*beatFrameSize : (i+1)*beatFrameSize] {
			sum += float64(s) * float64(s)
		}
		energy[i] = sum / beatFrameSize
	}

	onset := make([]float64, frames)
	var mean float64
	for i := 1; i < frames; i++ {
		onset[i] = math.Max(0, energy[i]-energy[i-1])
		mean += onset[i]
	}
	mean /= float64(frames)

	var variance float64
	for _, o := range onset {
		variance += (o - mean) * (o - mean)
	}
	std := math.Sqrt(variance / float64(frames))
	threshold := mean + beatThresholdStd*std

	frameSecs := float64(beatFrameSize) / float64(sampleRate)
	var beats []float64
	last := math.Inf(-1)
	for i, o := range onset {
		if o <= 0 || o <= threshold {
			continue
		}
		t := float64(i) * frameSecs
		if t-last < minBeatSeparation {
			continue
		}
		beats = append(beats, t)
		last = t
	}
	return beats
}

// BeatAnalyzer decodes an audio file and counts its beats
type BeatAnalyzer struct {
	ffmpeg     *FFmpeg
	sampleRate int
}

func NewBeatAnalyzer(ffmpeg *FFmpeg) *BeatAnalyzer {
	return &BeatAnalyzer{ffmpeg: ffmpeg, sampleRate: AnalysisSampleRate}
}

func (a *BeatAnalyzer) CountBeats(ctx context.Context, path string) (int, error) {
	samples, err := a.ffmpeg.DecodePCM(ctx, path, a.sampleRate)
	if err != nil {
		return 0, err
	}
	return len(DetectBeats(samples, a.sampleRate)), nil
}
