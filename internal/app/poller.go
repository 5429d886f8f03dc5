package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/scrapedeck/internal/api"
	"github.com/five82/scrapedeck/internal/queries"
	"github.com/five82/scrapedeck/internal/query"
)

const primeTimeout = 3 * time.Second

// Prime loads health and the first job page into the cache so the first
// frame has something to show. Ongoing polling belongs to the subscriptions
// the UI opens afterwards. Failures are recorded in the entries and joined
// into the returned error; neither fetch cancels the other.
func Prime(ctx context.Context, s *query.Synchronizer, catalog *queries.Catalog, first api.ListJobsQuery) error {
	ctx, cancel := context.WithTimeout(ctx, primeTimeout)
	defer cancel()

	var healthErr, listErr error
	var g errgroup.Group
	g.Go(func() error {
		if _, err := s.Fetch(ctx, catalog.Health()); err != nil {
			healthErr = fmt.Errorf("health: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := s.Fetch(ctx, catalog.JobList(first)); err != nil {
			listErr = fmt.Errorf("job list: %w", err)
		}
		return nil
	})
	_ = g.Wait()
	return errors.Join(healthErr, listErr)
}
