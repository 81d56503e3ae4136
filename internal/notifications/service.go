// Package notifications serves the local user's notification feed: mentions,
// replies and votes from other origins merged into one time-ordered list.
package notifications

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/agora/internal/enrich"
	"github.com/starford/agora/internal/index"
	"github.com/starford/agora/internal/models"
)

// ListOptions selects and decorates a page of notifications.
type ListOptions struct {
	After       time.Time
	Before      time.Time
	Offset      int
	Limit       int
	Reverse     bool
	FetchAuthor bool
	FetchPost   bool
}

func (o ListOptions) rng() index.Range {
	return index.Range{
		After:   o.After,
		Before:  o.Before,
		Offset:  o.Offset,
		Limit:   o.Limit,
		Reverse: o.Reverse,
	}
}

// Service reads the notification index.
type Service struct {
	db index.RecordIndex
}

// NewService creates a notification service over db.
func NewService(db index.RecordIndex) *Service {
	return &Service{db: db}
}

// ListNotifications returns a page of notifications. Authors are resolved
// once per distinct origin; posts are fetched from each notification's
// PostURL. A missing author or post leaves the field nil.
func (s *Service) ListNotifications(ctx context.Context, opts ListOptions) ([]*models.Notification, error) {
	page, err := s.db.ListNotifications(ctx, opts.rng())
	if err != nil {
		return nil, err
	}
	if len(page) == 0 || !(opts.FetchAuthor || opts.FetchPost) {
		return page, nil
	}

	origins := make([]string, len(page))
	postURLs := make([]string, len(page))
	for i, n := range page {
		origins[i] = n.Origin
		if opts.FetchPost {
			if postURLs[i], err = n.PostURL(); err != nil {
				return nil, err
			}
		}
	}

	var (
		authors map[string]*models.Profile
		posts   map[string]*models.Post
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.FetchAuthor {
		g.Go(func() (err error) {
			authors, err = enrich.Authors(gctx, s.db, origins)
			return err
		})
	}
	if opts.FetchPost {
		g.Go(func() (err error) {
			posts, err = enrich.Posts(gctx, s.db, postURLs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if posts != nil {
		if authors, err = s.postAuthors(ctx, authors, posts); err != nil {
			return nil, err
		}
	}

	for i, n := range page {
		if authors != nil {
			n.Author = authors[n.Origin]
		}
		if posts != nil {
			n.Post = posts[postURLs[i]]
		}
	}
	return page, nil
}

// postAuthors extends known with the profiles of every post author not yet
// resolved and attaches them. Each origin is still fetched at most once.
func (s *Service) postAuthors(ctx context.Context, known map[string]*models.Profile, posts map[string]*models.Post) (map[string]*models.Profile, error) {
	if known == nil {
		known = make(map[string]*models.Profile)
	}
	var missing []string
	for _, p := range posts {
		if p == nil {
			continue
		}
		if _, ok := known[p.Origin]; !ok {
			missing = append(missing, p.Origin)
		}
	}
	if len(missing) > 0 {
		fetched, err := enrich.Authors(ctx, s.db, missing)
		if err != nil {
			return nil, err
		}
		for o, prof := range fetched {
			known[o] = prof
		}
	}
	for _, p := range posts {
		if p != nil {
			p.Author = known[p.Origin]
		}
	}
	return known, nil
}

// CountNotifications counts the notifications ListNotifications would return.
func (s *Service) CountNotifications(ctx context.Context, opts ListOptions) (int, error) {
	return s.db.CountNotifications(ctx, opts.rng())
}
