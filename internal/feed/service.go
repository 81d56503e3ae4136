// Package feed owns posts and votes: tallies, post listings and thread
// reconstruction.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"

	"github.com/starford/agora/internal/apperr"
	"github.com/starford/agora/internal/enrich"
	"github.com/starford/agora/internal/index"
	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/records"
	"github.com/starford/agora/internal/recordstore"
	"github.com/starford/agora/internal/urlnorm"
)

// VoteInput is one vote as submitted by a caller.
type VoteInput struct {
	Subject     string `json:"subject"`
	Vote        int    `json:"vote"`
	SubjectType string `json:"subjectType,omitempty"`
}

// PostInput is a new post as submitted by a caller.
type PostInput struct {
	Text         string           `json:"text"`
	Mentions     []models.Mention `json:"mentions,omitempty"`
	ThreadParent string           `json:"threadParent,omitempty"`
	ThreadRoot   string           `json:"threadRoot,omitempty"`
}

// Validate implements validation.Validatable. A reply must name its thread
// root explicitly.
func (in PostInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Text, validation.Required),
		validation.Field(&in.ThreadRoot,
			validation.When(strings.TrimSpace(in.ThreadParent) != "", validation.Required.Error("is required for a reply"))),
		validation.Field(&in.Mentions, validation.Each(validation.By(func(v any) error {
			if m, _ := v.(models.Mention); strings.TrimSpace(m.URL) == "" {
				return errors.New("url is required")
			}
			return nil
		}))),
	)
}

// ListPostsOptions selects and decorates a page of posts.
type ListPostsOptions struct {
	After         time.Time
	Before        time.Time
	Offset        int
	Limit         int
	Reverse       bool
	RootPostsOnly bool
	FetchAuthor   bool
	CountVotes    bool
	CountReplies  bool
}

func (o ListPostsOptions) query() index.PostQuery {
	return index.PostQuery{
		Range: index.Range{
			After:   o.After,
			Before:  o.Before,
			Offset:  o.Offset,
			Limit:   o.Limit,
			Reverse: o.Reverse,
		},
		RootOnly: o.RootPostsOnly,
	}
}

// Service answers vote and post queries.
type Service struct {
	store *recordstore.Store
	db    index.RecordIndex
}

// NewService creates a feed service over store.
func NewService(store *recordstore.Store) *Service {
	return &Service{store: store, db: store.Index()}
}

// Vote records ref's vote on in.Subject, replacing an earlier vote on the
// same subject. The value is clamped to -1, 0 or 1.
func (s *Service) Vote(ctx context.Context, ref string, in VoteInput) error {
	if err := validation.Validate(strings.TrimSpace(in.Subject), validation.Required); err != nil {
		return fmt.Errorf("feed: vote subject: %w: %w", apperr.ErrInvalidVote, err)
	}
	_, err := s.store.PutVote(ctx, ref, &models.Vote{
		Subject:     in.Subject,
		Vote:        in.Vote,
		SubjectType: in.SubjectType,
	})
	return err
}

// ListVotesFor returns every vote on subject in the order they were first cast.
func (s *Service) ListVotesFor(ctx context.Context, subject string) ([]models.Vote, error) {
	return s.db.ListVotesFor(ctx, urlnorm.CanonicalURL(subject))
}

// CountVotesFor tallies the votes on subject.
func (s *Service) CountVotesFor(ctx context.Context, subject string) (models.Tally, error) {
	votes, err := s.ListVotesFor(ctx, subject)
	if err != nil {
		return models.Tally{}, err
	}
	return models.TallyVotes(votes), nil
}

// Post writes a new post by ref and returns its URL. Mention targets and
// thread links are canonicalized before writing.
func (s *Service) Post(ctx context.Context, ref string, in PostInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("feed: post: %w: %w", apperr.ErrInvalidPost, err)
	}
	p := &models.Post{
		Text:     in.Text,
		Mentions: records.CanonicalMentions(in.Mentions),
	}
	if in.ThreadParent != "" {
		p.ThreadParent = urlnorm.CanonicalURL(in.ThreadParent)
		p.ThreadRoot = urlnorm.CanonicalURL(in.ThreadRoot)
	}
	post, err := s.store.PutPost(ctx, ref, p)
	if err != nil {
		return "", err
	}
	return post.URL, nil
}

// GetPost returns the post at url with its author, or apperr.ErrNotFound.
func (s *Service) GetPost(ctx context.Context, url string) (*models.Post, error) {
	p, err := s.db.GetPost(ctx, urlnorm.CanonicalURL(url))
	if err != nil {
		return nil, err
	}
	author, err := s.db.GetProfile(ctx, p.Origin)
	switch {
	case err == nil:
		p.Author = author
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	return p, nil
}

// ListPosts returns a page of posts in creation order. Enrichments are
// computed after the page is selected and never change it.
func (s *Service) ListPosts(ctx context.Context, opts ListPostsOptions) ([]*models.Post, error) {
	posts, err := s.db.ListPosts(ctx, opts.query())
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return posts, nil
	}

	urls := make([]string, len(posts))
	origins := make([]string, len(posts))
	for i, p := range posts {
		urls[i] = p.URL
		origins[i] = p.Origin
	}

	var (
		authors map[string]*models.Profile
		tallies map[string]*models.Tally
		counts  map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.FetchAuthor {
		g.Go(func() (err error) {
			authors, err = enrich.Authors(gctx, s.db, origins)
			return err
		})
	}
	if opts.CountVotes {
		g.Go(func() (err error) {
			tallies, err = enrich.Tallies(gctx, s.db, urls)
			return err
		})
	}
	if opts.CountReplies {
		g.Go(func() (err error) {
			counts, err = enrich.ReplyCounts(gctx, s.db, urls)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range posts {
		if authors != nil {
			p.Author = authors[p.Origin]
		}
		if tallies != nil {
			p.Votes = tallies[p.URL]
		}
		if counts != nil {
			n := counts[p.URL]
			p.ReplyCount = &n
		}
	}
	return posts, nil
}

// CountPosts counts the posts ListPosts would return.
func (s *Service) CountPosts(ctx context.Context, opts ListPostsOptions) (int, error) {
	return s.db.CountPosts(ctx, opts.query())
}
