package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/makeasinger/musicvideo/internal/client"
	"github.com/makeasinger/musicvideo/internal/media"
	"github.com/makeasinger/musicvideo/internal/model"
)

const minImages = 8

// BeatCounter counts the beats of a local audio file
type BeatCounter interface {
	CountBeats(ctx context.Context, path string) (int, error)
}

// Plan is the image plan derived from one track
type Plan struct {
	Beats      int          `json:"beats"`
	NumImages  int          `json:"numImages"`
	NumPrompts int          `json:"numPrompts"`
	Bucket     media.Bucket `json:"bucket"`
	Prompts    []string     `json:"prompts"`
}

// ImagePrompts returns one prompt per image, reusing prompts round-robin
func (p *Plan) ImagePrompts() []string {
	return CyclePrompts(p.Prompts, p.NumImages)
}

// ImageCounts derives the image and prompt counts from a beat count
func ImageCounts(beats int) (numImages, numPrompts int) {
	numImages = max(minImages, beats/2)
	return numImages, numImages / 2
}

// CyclePrompts expands prompts to n entries in round-robin order
func CyclePrompts(prompts []string, n int) []string {
	if len(prompts) == 0 || n <= 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = prompts[i%len(prompts)]
	}
	return out
}

// BuildPromptRequest is the instruction sent to the text model for art prompts
func BuildPromptRequest(req model.CreateRequest, numPrompts int, bucket media.Bucket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d unique, vivid AI art prompts based on the theme '%s',", numPrompts, req.Target())
	fmt.Fprintf(&b, " with a '%s' mood for a '%s' audience.", req.Mood, req.Age)
	if bucket.Label != "" {
		fmt.Fprintf(&b, " Duration category: %s (%d sec).", bucket.Label, bucket.Seconds)
	}
	b.WriteString(" Return as a JSON list of strings.")
	return b.String()
}

// ParsePromptList decodes a JSON list of strings, tolerating code fences and
// text around the list. Anything else is a protocol error.
func ParsePromptList(text string) ([]string, error) {
	text = client.StripCodeFence(text)
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, model.NewProtocolError("prompts", "not a JSON list of strings: %v", err)
	}

	prompts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			prompts = append(prompts, p)
		}
	}
	if len(prompts) == 0 {
		return nil, model.NewProtocolError("prompts", "empty prompt list")
	}
	return prompts, nil
}

// Planner analyses a track and asks the text model for matching art prompts
type Planner struct {
	beats BeatCounter
	text  client.TextGenerator
	log   *slog.Logger
}

func New(beats BeatCounter, text client.TextGenerator, log *slog.Logger) *Planner {
	return &Planner{beats: beats, text: text, log: log.With("component", "planner")}
}

// Plan builds the image plan for the audio at path with the measured duration
func (p *Planner) Plan(ctx context.Context, audioPath string, duration float64, req model.CreateRequest) (*Plan, error) {
	beats, err := p.beats.CountBeats(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("beat analysis: %w", err)
	}

	numImages, numPrompts := ImageCounts(beats)
	bucket := media.BucketFor(duration)

	text, err := p.text.GenerateText(ctx, BuildPromptRequest(req, numPrompts, bucket))
	if err != nil {
		return nil, fmt.Errorf("art prompts: %w", err)
	}
	prompts, err := ParsePromptList(text)
	if err != nil {
		return nil, err
	}

	p.log.Info("image plan ready",
		"beats", beats,
		"images", numImages,
		"prompts_requested", numPrompts,
		"prompts_received", len(prompts),
		"bucket", bucket.Label,
	)

	return &Plan{
		Beats:      beats,
		NumImages:  numImages,
		NumPrompts: numPrompts,
		Bucket:     bucket,
		Prompts:    prompts,
	}, nil
}
