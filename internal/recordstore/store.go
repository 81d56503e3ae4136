// Package recordstore writes records into their owning replica and indexes
// them in the same call, so a write is visible to queries once it returns.
package recordstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/starford/agora/internal/apperr"
	"github.com/starford/agora/internal/index"
	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/records"
	"github.com/starford/agora/internal/replica"
	"github.com/starford/agora/internal/storage"
	"github.com/starford/agora/internal/urlnorm"
)

// Store coordinates replica files and the index.
type Store struct {
	reg   *replica.Registry
	ix    *index.Indexer
	locks keyedMutex
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a record store writing to the replicas of reg.
func New(reg *replica.Registry, ix *index.Indexer, opts ...Option) *Store {
	s := &Store{reg: reg, ix: ix, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Index returns the record index queries should run against.
func (s *Store) Index() index.RecordIndex {
	return s.ix.DB()
}

// ProfileMutator edits a profile in place and reports whether it changed.
type ProfileMutator func(p *models.Profile) bool

// UpdateProfile applies fn to the profile of origin and persists the result.
// It returns the number of profiles matched: 0 when origin has no profile.
// Updates to one origin are serialized.
func (s *Store) UpdateProfile(ctx context.Context, origin string, fn ProfileMutator) (int, error) {
	return s.mutateProfile(ctx, origin, false, fn)
}

// UpsertProfile is UpdateProfile that creates an empty profile first when
// origin has none.
func (s *Store) UpsertProfile(ctx context.Context, origin string, fn ProfileMutator) error {
	_, err := s.mutateProfile(ctx, origin, true, fn)
	return err
}

func (s *Store) mutateProfile(ctx context.Context, origin string, create bool, fn ProfileMutator) (int, error) {
	origin = urlnorm.CanonicalOrigin(origin)
	store, err := s.reg.Lookup(origin)
	if err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(origin)
	defer unlock()

	now := s.now().UTC()
	var p *models.Profile
	data, err := store.Read(records.ProfilePath)
	switch {
	case err == nil:
		rec, err := records.Decode(origin, records.ProfilePath, data, now)
		if err != nil {
			return 0, err
		}
		p = rec.Profile
	case errors.Is(err, fs.ErrNotExist):
		if !create {
			return 0, nil
		}
		p = &models.Profile{
			Origin:    origin,
			URL:       urlnorm.Join(origin, records.ProfilePath),
			CreatedAt: now,
		}
		p.SetFollows(nil)
	default:
		return 0, err
	}

	if !fn(p) && data != nil {
		return 1, nil
	}
	p.UpdatedAt = now

	out, err := records.EncodeProfile(p)
	if err != nil {
		return 0, fmt.Errorf("recordstore: encode profile: %w", err)
	}
	if err := s.write(ctx, store, origin, records.ProfilePath, out, now); err != nil {
		return 0, err
	}
	return 1, nil
}

// WriteAsset stores a non-record file such as an avatar in origin's replica
// and returns its URL.
func (s *Store) WriteAsset(_ context.Context, origin, name string, data []byte) (string, error) {
	origin = urlnorm.CanonicalOrigin(origin)
	store, err := s.reg.Lookup(origin)
	if err != nil {
		return "", err
	}
	if records.KindOf(name) != records.KindUnknown {
		return "", fmt.Errorf("recordstore: %s is a record path", name)
	}

	unlock := s.locks.Lock(origin + "/" + name)
	defer unlock()

	if err := store.Write(name, data); err != nil {
		return "", err
	}
	return urlnorm.Join(origin, name), nil
}

// ReadAsset returns a non-record file from origin's replica.
func (s *Store) ReadAsset(_ context.Context, origin, name string) ([]byte, error) {
	store, err := s.reg.Lookup(origin)
	if err != nil {
		return nil, err
	}
	data, err := store.Read(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("recordstore: asset %s: %w", name, apperr.ErrNotFound)
	}
	return data, err
}

// PutPost writes p as a new post of origin. The post id is derived from the
// current time and bumped until it names an unused file. It returns the
// indexed post.
func (s *Store) PutPost(ctx context.Context, origin string, p *models.Post) (*models.Post, error) {
	origin = urlnorm.CanonicalOrigin(origin)
	store, err := s.reg.Lookup(origin)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(origin + "/posts")
	defer unlock()

	now := s.now().UTC()
	id := records.PostID(now)
	for {
		exists, err := store.Exists(records.PostPath(id))
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		id = records.NextPostID(id)
	}
	path := records.PostPath(id)

	post := *p
	post.Origin = origin
	post.URL = urlnorm.Join(origin, path)
	post.CreatedAt = now

	out, err := records.EncodePost(&post)
	if err != nil {
		return nil, fmt.Errorf("recordstore: encode post: %w", err)
	}
	if err := s.write(ctx, store, origin, path, out, now); err != nil {
		return nil, err
	}
	return &post, nil
}

// PutVote writes origin's vote on v.Subject, replacing an earlier vote on the
// same subject. The first vote's creation time is kept.
func (s *Store) PutVote(ctx context.Context, origin string, v *models.Vote) (*models.Vote, error) {
	origin = urlnorm.CanonicalOrigin(origin)
	store, err := s.reg.Lookup(origin)
	if err != nil {
		return nil, err
	}

	subject := urlnorm.CanonicalURL(v.Subject)
	path := records.VotePath(subject)

	unlock := s.locks.Lock(origin + "/" + path)
	defer unlock()

	now := s.now().UTC()
	vote := models.Vote{
		URL:         urlnorm.Join(origin, path),
		Origin:      origin,
		Subject:     subject,
		Vote:        models.ClampVote(v.Vote),
		SubjectType: v.SubjectType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prev, err := store.Read(path); err == nil {
		if rec, err := records.Decode(origin, path, prev, now); err == nil {
			vote.CreatedAt = rec.Vote.CreatedAt
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	out, err := records.EncodeVote(&vote)
	if err != nil {
		return nil, fmt.Errorf("recordstore: encode vote: %w", err)
	}
	if err := s.write(ctx, store, origin, path, out, now); err != nil {
		return nil, err
	}
	return &vote, nil
}

// write stores data at path and indexes the same bytes.
func (s *Store) write(ctx context.Context, store storage.Provider, origin, path string, data []byte, now time.Time) error {
	url := urlnorm.Join(origin, path)
	existed, err := store.Exists(path)
	if err != nil {
		return err
	}
	if err := store.Write(path, data); err != nil {
		return err
	}
	rec, err := s.ix.IndexFile(ctx, origin, path, data, now)
	if err != nil {
		return fmt.Errorf("recordstore: index %s: %w", url, err)
	}

	kind := index.EventCreated
	if existed {
		kind = index.EventUpdated
	}
	s.ix.Emit(index.Event{Kind: kind, URL: url, Record: rec.Kind})
	return nil
}
