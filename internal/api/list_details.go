package api

import (
	"context"

	"golang.org/x/sync/errgroup"

	"inpass/internal/domain"
)

// ListAbsencesWithDetails fetches one page of summaries, then one
// detail per summary concurrently. The page is complete only when
// every detail arrives: a single failure fails the whole fetch.
// Details merge onto summaries non-destructively, so summary fields
// the detail payload omits survive.
func (c *Client) ListAbsencesWithDetails(ctx context.Context, params domain.ListParams) ([]domain.AbsenceRequest, error) {
	summaries, err := c.ListAbsences(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return summaries, nil
	}

	merged := make([]domain.AbsenceRequest, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	for i, summary := range summaries {
		g.Go(func() error {
			detail, err := c.Absence(gctx, summary.ID)
			if err != nil {
				return err
			}
			merged[i] = summary.Merge(detail)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merged, nil
}
