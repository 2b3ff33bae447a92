package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/renohq/reno/internal/actions"
	"github.com/renohq/reno/internal/intent"
	"github.com/renohq/reno/internal/provider"
)

// enrich fans out the multimodal tools selected for the intent and collects
// whatever came back in time. Tool failures, timeouts, and panics are logged
// and absorbed; enrichment never degrades the turn. Only agent-mode
// conversations reach this.
func (p *Pipeline) enrich(ctx context.Context, label intent.Label, userText string, slots map[string]string) *ToolOutput {
	ctx, cancel := context.WithTimeout(ctx, p.tools.OverallTimeout)
	defer cancel()

	var (
		mu  sync.Mutex
		out ToolOutput
	)
	g, gctx := errgroup.WithContext(ctx)

	switch label {
	case intent.DesignVisualization:
		g.Go(p.tool(gctx, "image_generation", func(tctx context.Context) error {
			images, err := p.imageGen.GenerateImage(tctx, userText, slots["style"])
			if err != nil {
				return err
			}
			mu.Lock()
			out.Images = images
			mu.Unlock()
			return nil
		}))
		g.Go(p.tool(gctx, "product_search", func(tctx context.Context) error {
			products, err := p.search.Search(tctx, userText+" buy", "")
			if err != nil {
				return err
			}
			mu.Lock()
			out.Products = products
			mu.Unlock()
			return nil
		}))
	case intent.ProductSearch, intent.CostEstimate:
		g.Go(p.tool(gctx, "product_search", func(tctx context.Context) error {
			products, err := p.search.Search(tctx, userText+" buy", "")
			if err != nil {
				return err
			}
			mu.Lock()
			out.Products = products
			mu.Unlock()
			return nil
		}))
	case intent.DIYGuide:
		g.Go(p.tool(gctx, "video_search", func(tctx context.Context) error {
			videos, err := p.searchVideos(tctx, userText)
			if err != nil {
				return err
			}
			mu.Lock()
			out.Videos = videos
			mu.Unlock()
			return nil
		}))
	case intent.ContractorQuotes:
		g.Go(p.tool(gctx, "contractor_lookup", func(tctx context.Context) error {
			jobType := actions.DetectJobType(userText)
			if jobType == "" {
				jobType = "general contractor"
			}
			location := slots["location"]
			if location == "" {
				location = p.tools.DefaultLocation
			}
			if location == "" {
				return nil
			}
			contractors, err := p.places.FindNearby(tctx, jobType, location)
			if err != nil {
				return err
			}
			mu.Lock()
			out.Contractors = contractors
			mu.Unlock()
			return nil
		}))
	default:
		return nil
	}

	_ = g.Wait() // tools never return errors through the group
	if out.empty() {
		return nil
	}
	return &out
}

// tool wraps one enrichment call with its own timeout and a panic boundary.
// The returned func always reports nil so one tool can't cancel its siblings
// through the group.
func (p *Pipeline) tool(ctx context.Context, name string, fn func(ctx context.Context) error) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("enrichment tool panicked", "tool", name, "panic", r)
			}
		}()
		tctx, cancel := context.WithTimeout(ctx, p.tools.PerToolTimeout)
		defer cancel()
		if err := fn(tctx); err != nil {
			slog.Warn("enrichment tool failed", "tool", name, "error", err)
		}
		return nil
	}
}

// searchVideos runs a web search biased toward tutorials and keeps only
// video platform results.
func (p *Pipeline) searchVideos(ctx context.Context, topic string) ([]provider.VideoResult, error) {
	results, err := p.search.Search(ctx, fmt.Sprintf("how to %s video tutorial", topic), "")
	if err != nil {
		return nil, err
	}
	var videos []provider.VideoResult
	for _, r := range results {
		if !isVideoURL(r.URL) {
			continue
		}
		videos = append(videos, provider.VideoResult{Title: r.Title, URL: r.URL, Channel: r.Source})
	}
	return videos, nil
}

func isVideoURL(url string) bool {
	for _, host := range []string{"youtube.com/", "youtu.be/", "vimeo.com/"} {
		if strings.Contains(url, host) {
			return true
		}
	}
	return false
}
