package feed

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/starford/agora/internal/apperr"
	"github.com/starford/agora/internal/enrich"
	"github.com/starford/agora/internal/index"
	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/urlnorm"
)

// MaxThreadDepth bounds how far GetThread follows threadParent links in
// either direction.
const MaxThreadDepth = 256

// GetThread returns the post at url with its author, vote tally, every reply
// below it and its chain of parents up to the root. Each reply and parent is
// decorated the same way; a post without replies has nil Replies. A parent
// that is not indexed ends the chain.
//
// threadParent links are written by other origins, so they are not trusted
// to be acyclic: a loop fails the call with apperr.ErrThreadCycle.
func (s *Service) GetThread(ctx context.Context, url string) (*models.Post, error) {
	post, err := s.db.GetPost(ctx, urlnorm.CanonicalURL(url))
	if err != nil {
		return nil, err
	}

	b := &threadBuilder{db: s.db, built: map[string]*models.Post{}}
	if err := b.descend(ctx, post, map[string]bool{}, 0); err != nil {
		return nil, err
	}

	ancestors := map[string]bool{post.URL: true}
	for cur, depth := post, 0; cur.ThreadParent != ""; depth++ {
		if ancestors[cur.ThreadParent] || depth >= MaxThreadDepth {
			return nil, fmt.Errorf("feed: thread above %s: %w", post.URL, apperr.ErrThreadCycle)
		}
		parent, err := s.db.GetPost(ctx, cur.ThreadParent)
		if errors.Is(err, apperr.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		ancestors[parent.URL] = true
		if err := b.descend(ctx, parent, map[string]bool{}, 0); err != nil {
			return nil, err
		}
		cur.Parent = parent
		cur = parent
	}

	if err := b.decorate(ctx); err != nil {
		return nil, err
	}
	return post, nil
}

// threadBuilder materializes reply trees and remembers every node it created
// so they can be decorated in one pass. Each post's subtree is loaded once:
// walking up the parent chain splices the child's finished subtree into the
// parent instead of loading it again.
type threadBuilder struct {
	db    index.RecordIndex
	nodes []*models.Post
	built map[string]*models.Post
}

// descend loads the replies below p. path holds the URLs on the way down from
// the starting post; meeting one again means the links loop.
func (b *threadBuilder) descend(ctx context.Context, p *models.Post, path map[string]bool, depth int) error {
	b.nodes = append(b.nodes, p)
	b.built[p.URL] = p
	if depth >= MaxThreadDepth {
		return fmt.Errorf("feed: thread below %s: %w", p.URL, apperr.ErrThreadCycle)
	}

	replies, err := b.db.ListReplies(ctx, p.URL)
	if err != nil {
		return err
	}
	if len(replies) == 0 {
		return nil
	}

	path[p.URL] = true
	defer delete(path, p.URL)
	for i, r := range replies {
		if path[r.URL] {
			return fmt.Errorf("feed: thread below %s: %w", p.URL, apperr.ErrThreadCycle)
		}
		if done, ok := b.built[r.URL]; ok {
			// Copy without Parent so the result stays a tree.
			c := *done
			c.Parent = nil
			replies[i] = &c
			b.nodes = append(b.nodes, &c)
			continue
		}
		if err := b.descend(ctx, r, path, depth+1); err != nil {
			return err
		}
	}
	p.Replies = replies
	return nil
}

// decorate attaches authors and vote tallies to every node built so far.
func (b *threadBuilder) decorate(ctx context.Context) error {
	urls := make([]string, len(b.nodes))
	origins := make([]string, len(b.nodes))
	for i, n := range b.nodes {
		urls[i] = n.URL
		origins[i] = n.Origin
	}

	var (
		authors map[string]*models.Profile
		tallies map[string]*models.Tally
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		authors, err = enrich.Authors(gctx, b.db, origins)
		return err
	})
	g.Go(func() (err error) {
		tallies, err = enrich.Tallies(gctx, b.db, urls)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, n := range b.nodes {
		n.Author = authors[n.Origin]
		n.Votes = tallies[n.URL]
	}
	return nil
}
