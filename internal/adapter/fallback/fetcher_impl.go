package fallback

import (
	"context"
	"errors"
	"net/http"

	"github.com/user/gig-sync-service/internal/entity"
	"github.com/user/gig-sync-service/internal/repository"
	"github.com/user/gig-sync-service/pkg/logger"
	"go.uber.org/zap"
)

// Fetcher tries its fetchers in order and returns the first usable result.
type Fetcher struct {
	fetchers []repository.Fetcher
	logger   *zap.Logger
}

func NewFetcher(l *zap.Logger, fetchers ...repository.Fetcher) *Fetcher {
	return &Fetcher{
		fetchers: fetchers,
		logger:   logger.OrNop(l).With(zap.String("component", "fallback_fetcher")),
	}
}

// Fetch returns the first result with a 2xx or 3xx status and non-empty body.
// When every fetcher fails, the last result or the joined errors are returned.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*entity.FetchResult, error) {
	var (
		errs []error
		last *entity.FetchResult
	)
	for i, fetcher := range f.fetchers {
		res, err := fetcher.Fetch(ctx, url)
		switch {
		case err != nil:
			errs = append(errs, err)
		case res.StatusCode < http.StatusBadRequest && res.HTML != "":
			return res, nil
		default:
			last = res
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i < len(f.fetchers)-1 {
			f.logger.Debug("fetcher gave no usable page, trying next", zap.String("url", url), zap.Int("fetcher", i), zap.Errors("errors", errs))
		}
	}
	if last != nil {
		return last, nil
	}
	if len(errs) == 0 {
		return nil, errors.New("no fetchers configured")
	}
	return nil, errors.Join(errs...)
}
