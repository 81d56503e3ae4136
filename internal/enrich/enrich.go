// Package enrich resolves the joins that decorate query results: author
// profiles, posts, vote tallies and reply counts. Every fetch for one call is
// issued concurrently, results are collected by position and only then
// assembled, so the caller's ordering never depends on scheduling.
package enrich

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/starford/agora/internal/apperr"
	"github.com/starford/agora/internal/index"
	"github.com/starford/agora/internal/models"
)

// Distinct returns keys without repeats, in first-seen order. Empty keys are dropped.
func Distinct(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// fetch runs fn once per distinct key and maps each key to its result.
// A fn returning apperr.ErrNotFound leaves the zero value for that key.
func fetch[T any](ctx context.Context, keys []string, fn func(context.Context, string) (T, error)) (map[string]T, error) {
	distinct := Distinct(keys)
	results := make([]T, len(distinct))

	g, gctx := errgroup.WithContext(ctx)
	for i, k := range distinct {
		g.Go(func() error {
			v, err := fn(gctx, k)
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]T, len(distinct))
	for i, k := range distinct {
		out[k] = results[i]
	}
	return out, nil
}

// Authors resolves each distinct origin to its profile once. Origins without
// a profile map to nil.
func Authors(ctx context.Context, db index.RecordIndex, origins []string) (map[string]*models.Profile, error) {
	return fetch(ctx, origins, db.GetProfile)
}

// Posts resolves each distinct URL to its post. Missing posts map to nil.
func Posts(ctx context.Context, db index.RecordIndex, urls []string) (map[string]*models.Post, error) {
	return fetch(ctx, urls, db.GetPost)
}

// Tallies computes the vote tally of each distinct subject from its votes.
func Tallies(ctx context.Context, db index.RecordIndex, subjects []string) (map[string]*models.Tally, error) {
	return fetch(ctx, subjects, func(ctx context.Context, subject string) (*models.Tally, error) {
		votes, err := db.ListVotesFor(ctx, subject)
		if err != nil {
			return nil, err
		}
		t := models.TallyVotes(votes)
		return &t, nil
	})
}

// ReplyCounts counts the direct replies of each distinct post URL.
func ReplyCounts(ctx context.Context, db index.RecordIndex, urls []string) (map[string]int, error) {
	return fetch(ctx, urls, db.CountReplies)
}
