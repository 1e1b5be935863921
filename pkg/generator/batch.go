package generator

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel generation in GenerateAll.
const DefaultConcurrency = 4

// BatchResult is the outcome for one request of a batch.
type BatchResult struct {
	ClientID string
	Result   *Result
	Err      error
}

// GenerateAll generates every request in parallel. Requests are independent:
// one failing client does not stop the others. Results keep request order;
// the returned error joins every per-client failure.
func (g *Generator) GenerateAll(ctx context.Context, reqs []Request, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]BatchResult, len(reqs))
	var eg errgroup.Group
	eg.SetLimit(concurrency)
	for i, req := range reqs {
		i, req := i, req
		eg.Go(func() error {
			results[i].ClientID = req.ClientID
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Result, results[i].Err = g.Generate(ctx, req)
			return nil
		})
	}
	_ = eg.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}
