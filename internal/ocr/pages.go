package ocr

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/practicos/internal/log"
	"github.com/practicos/internal/metrics"
	"github.com/practicos/internal/pdf"
)

// PageResult is the outcome for one page. Err is set when the page could
// not be recognised; the other pages are unaffected.
type PageResult struct {
	Page int
	Text string
	Err  error
}

// RecognizePages runs engine over pages with at most workers concurrent
// calls. Results are in page order. The returned error is only set when ctx
// is cancelled.
func RecognizePages(ctx context.Context, engine Engine, pages []pdf.Page, workers int, opts ...InputOption) ([]PageResult, error) {
	logger := log.WithComponent("ocr")
	if workers < 1 {
		workers = 1
	}
	results := make([]PageResult, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, page := range pages {
		results[i].Page = page.Number
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			in := NewInput(fmt.Sprintf("page-%d", page.Number), page.Path, opts...)
			res, err := engine.Recognize(gctx, in)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Error().Err(err).Int("page", page.Number).Msg("error processing page")
				metrics.IncPage(engine.Name(), "error")
				results[i].Err = err
				return nil
			}
			logger.Debug().Int("page", page.Number).Dur("took", res.Duration).Msg("page recognised")
			metrics.IncPage(engine.Name(), "ok")
			results[i].Text = res.Text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
