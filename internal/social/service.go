// Package social owns profiles and the follow graph derived from them.
package social

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"

	"github.com/starford/agora/internal/apperr"
	"github.com/starford/agora/internal/index"
	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/recordstore"
	"github.com/starford/agora/internal/urlnorm"
)

var extRe = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// ProfileFields is a partial profile update. Nil fields are left untouched.
type ProfileFields struct {
	Name    *string         `json:"name,omitempty"`
	Bio     *string         `json:"bio,omitempty"`
	Follows []models.Follow `json:"follows,omitempty"`
}

// Validate implements validation.Validatable.
func (f ProfileFields) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.NilOrNotEmpty, validation.Length(0, 256)),
		validation.Field(&f.Bio, validation.Length(0, 4096)),
		validation.Field(&f.Follows, validation.Each(validation.By(func(v any) error {
			if f, _ := v.(models.Follow); strings.TrimSpace(f.URL) == "" {
				return errors.New("url is required")
			}
			return nil
		}))),
	)
}

// Service answers profile and follow-graph queries.
type Service struct {
	store *recordstore.Store
	db    index.RecordIndex
}

// NewService creates a social service over store.
func NewService(store *recordstore.Store) *Service {
	return &Service{store: store, db: store.Index()}
}

// GetProfile returns the profile of ref's origin or apperr.ErrNotFound.
func (s *Service) GetProfile(ctx context.Context, ref string) (*models.Profile, error) {
	return s.db.GetProfile(ctx, urlnorm.CanonicalOrigin(ref))
}

// SetProfile upserts the profile of ref's origin. Follows are replaced only
// when f.Follows is non-nil.
func (s *Service) SetProfile(ctx context.Context, ref string, f ProfileFields) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("social: set profile: %w: %w", apperr.ErrInvalidInput, err)
	}
	return s.store.UpsertProfile(ctx, ref, func(p *models.Profile) bool {
		if f.Name != nil {
			p.Name = *f.Name
		}
		if f.Bio != nil {
			p.Bio = *f.Bio
		}
		if f.Follows != nil {
			p.SetFollows(f.Follows)
		}
		return true
	})
}

// SetAvatar writes data as avatar.<ext> into the replica of ref's origin and
// points the profile at it. It fails with apperr.ErrNotIndexed when that
// origin is not a replica of this node.
func (s *Service) SetAvatar(ctx context.Context, ref string, data []byte, ext string) error {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if err := validation.Validate(ext,
		validation.Required,
		validation.Match(extRe).Error("must be 1-8 letters or digits"),
	); err != nil {
		return fmt.Errorf("social: avatar extension: %w: %w", apperr.ErrInvalidInput, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("social: avatar: %w: empty image", apperr.ErrInvalidInput)
	}

	name := "avatar." + ext
	if _, err := s.store.WriteAsset(ctx, ref, name, data); err != nil {
		return err
	}
	return s.store.UpsertProfile(ctx, ref, func(p *models.Profile) bool {
		p.Avatar = name
		return true
	})
}

// Avatar returns the avatar file name and bytes of ref's profile. It fails
// with apperr.ErrNotFound when the profile has no avatar.
func (s *Service) Avatar(ctx context.Context, ref string) (string, []byte, error) {
	p, err := s.GetProfile(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	if p.Avatar == "" {
		return "", nil, fmt.Errorf("social: avatar of %s: %w", p.Origin, apperr.ErrNotFound)
	}
	data, err := s.store.ReadAsset(ctx, p.Origin, p.Avatar)
	if err != nil {
		return "", nil, err
	}
	return p.Avatar, data, nil
}

// Follow adds target to the follows of ref's origin. Following twice is a
// no-op. It fails with apperr.ErrNoProfile when ref has no profile.
func (s *Service) Follow(ctx context.Context, ref, target, name string) error {
	n, err := s.store.UpdateProfile(ctx, ref, func(p *models.Profile) bool {
		return p.AddFollow(target, name)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("social: follow %s: %w", urlnorm.CanonicalOrigin(ref), apperr.ErrNoProfile)
	}
	return nil
}

// Unfollow removes target from the follows of ref's origin. Removing a
// follow that does not exist is a no-op.
func (s *Service) Unfollow(ctx context.Context, ref, target string) error {
	n, err := s.store.UpdateProfile(ctx, ref, func(p *models.Profile) bool {
		return p.RemoveFollow(target)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("social: unfollow %s: %w", urlnorm.CanonicalOrigin(ref), apperr.ErrNoProfile)
	}
	return nil
}

// ListFollowers returns the profiles that follow target.
func (s *Service) ListFollowers(ctx context.Context, target string) ([]*models.Profile, error) {
	return s.db.ListFollowers(ctx, urlnorm.CanonicalOrigin(target))
}

// CountFollowers counts the profiles that follow target.
func (s *Service) CountFollowers(ctx context.Context, target string) (int, error) {
	return s.db.CountFollowers(ctx, urlnorm.CanonicalOrigin(target))
}

// IsFollowing reports whether a follows b. It is false when a has no profile.
func (s *Service) IsFollowing(ctx context.Context, a, b string) (bool, error) {
	p, err := s.GetProfile(ctx, a)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsFollowing(b), nil
}

// IsFriendsWith reports whether a and b follow each other.
func (s *Service) IsFriendsWith(ctx context.Context, a, b string) (bool, error) {
	var ab, ba bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ab, err = s.IsFollowing(gctx, a, b)
		return err
	})
	g.Go(func() error {
		var err error
		ba, err = s.IsFollowing(gctx, b, a)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, err
	}
	return ab && ba, nil
}

// ListFriends returns the followers of ref that ref follows back, in the
// order of ListFollowers.
func (s *Service) ListFriends(ctx context.Context, ref string) ([]*models.Profile, error) {
	followers, err := s.ListFollowers(ctx, ref)
	if err != nil {
		return nil, err
	}

	mutual := make([]bool, len(followers))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range followers {
		g.Go(func() error {
			ok, err := s.IsFriendsWith(gctx, ref, f.Origin)
			if err != nil {
				return err
			}
			mutual[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	friends := make([]*models.Profile, 0, len(followers))
	for i, f := range followers {
		if mutual[i] {
			friends = append(friends, f)
		}
	}
	return friends, nil
}

// CountFriends counts the mutual follows of ref.
func (s *Service) CountFriends(ctx context.Context, ref string) (int, error) {
	friends, err := s.ListFriends(ctx, ref)
	if err != nil {
		return 0, err
	}
	return len(friends), nil
}
