package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/makeasinger/musicvideo/internal/client"
	"github.com/makeasinger/musicvideo/internal/model"
)

// Downloader fetches a remote file into dir
type Downloader interface {
	Download(ctx context.Context, rawURL, dir, pattern string) (string, error)
}

// Result of one batch. Paths keep prompt order with failed slots left out.
type Result struct {
	Paths     []string
	Requested int
	Failed    int
}

// Batch requests one image per prompt and downloads the results
type Batch struct {
	images      client.ImageGenerator
	downloader  Downloader
	concurrency int
	log         *slog.Logger
}

func NewBatch(images client.ImageGenerator, downloader Downloader, concurrency int, log *slog.Logger) *Batch {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batch{
		images:      images,
		downloader:  downloader,
		concurrency: concurrency,
		log:         log.With("component", "imagegen"),
	}
}

// Generate issues the image requests serially, then downloads the returned
// URLs with bounded concurrency. Individual failures are skipped; a missing
// credential or a cancelled context aborts the batch.
func (b *Batch) Generate(ctx context.Context, prompts []string, dir string) (*Result, error) {
	res := &Result{Requested: len(prompts)}
	urls := make([]string, len(prompts))

	for i, prompt := range prompts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b.log.Info("requesting image", "index", i+1, "total", len(prompts))
		u, err := b.images.GenerateImage(ctx, prompt)
		if err != nil {
			if errors.Is(err, model.ErrNotConfigured) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			b.log.Warn("image request failed", "index", i+1, "error", err)
			continue
		}
		urls[i] = u
	}

	paths := make([]string, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, u := range urls {
		if u == "" {
			continue
		}
		g.Go(func() error {
			p, err := b.downloader.Download(gctx, u, dir, fmt.Sprintf("img-%03d-*.jpg", i))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				b.log.Warn("image download failed", "index", i+1, "error", err)
				return nil
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range paths {
		if p != "" {
			res.Paths = append(res.Paths, p)
		}
	}
	res.Failed = res.Requested - len(res.Paths)

	b.log.Info("image batch finished", "requested", res.Requested, "ok", len(res.Paths), "failed", res.Failed)
	return res, nil
}
