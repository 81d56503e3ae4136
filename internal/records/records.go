// Package records maps replica files to domain records: where each record kind
// lives inside a replica and how it is encoded on disk.
package records

import (
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/urlnorm"
)

// Kind identifies the record type stored at a path.
type Kind string

const (
	KindUnknown Kind = ""
	KindProfile Kind = "profile"
	KindPost    Kind = "post"
	KindVote    Kind = "vote"
)

const (
	ProfilePath = "profile.json"
	postsDir    = "posts"
	votesDir    = "votes"
	ext         = ".json"
)

// KindOf classifies a replica-relative path.
func KindOf(p string) Kind {
	p = strings.TrimLeft(p, "/")
	if p == ProfilePath {
		return KindProfile
	}
	dir, file := path.Split(p)
	if !strings.HasSuffix(file, ext) || strings.HasPrefix(file, ".") {
		return KindUnknown
	}
	switch strings.TrimSuffix(dir, "/") {
	case postsDir:
		return KindPost
	case votesDir:
		return KindVote
	}
	return KindUnknown
}

// PostPath returns the path of the post with the given id.
func PostPath(id string) string {
	return postsDir + "/" + id + ext
}

// PostID derives a post id from its creation time: milliseconds since the
// epoch in base 36, so ids sort by time for a fixed width.
func PostID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 36)
}

// NextPostID returns the id that follows id, used when two posts would share
// the same millisecond.
func NextPostID(id string) string {
	n, err := strconv.ParseInt(id, 36, 64)
	if err != nil {
		return id + "0"
	}
	return strconv.FormatInt(n+1, 36)
}

// VotePath returns the path of an origin's vote on subject. The filename is a
// name-based UUID of the canonical subject, so re-voting rewrites the same file.
func VotePath(subject string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(urlnorm.CanonicalURL(subject)))
	return votesDir + "/" + id.String() + ext
}

type profileFile struct {
	Name      string          `json:"name,omitempty"`
	Bio       string          `json:"bio,omitempty"`
	Avatar    string          `json:"avatar,omitempty"`
	Follows   []models.Follow `json:"follows,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type postFile struct {
	Text         string           `json:"text"`
	Mentions     []models.Mention `json:"mentions,omitempty"`
	ThreadParent string           `json:"threadParent,omitempty"`
	ThreadRoot   string           `json:"threadRoot,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

type voteFile struct {
	Subject     string    `json:"subject"`
	Vote        int       `json:"vote"`
	SubjectType string    `json:"subjectType,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EncodeProfile renders the on-disk form of p. Derived fields are not written.
func EncodeProfile(p *models.Profile) ([]byte, error) {
	return json.MarshalIndent(profileFile{
		Name:      p.Name,
		Bio:       p.Bio,
		Avatar:    p.Avatar,
		Follows:   p.Follows,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}, "", "  ")
}

// EncodePost renders the on-disk form of p.
func EncodePost(p *models.Post) ([]byte, error) {
	return json.MarshalIndent(postFile{
		Text:         p.Text,
		Mentions:     p.Mentions,
		ThreadParent: p.ThreadParent,
		ThreadRoot:   p.ThreadRoot,
		CreatedAt:    p.CreatedAt.UTC(),
	}, "", "  ")
}

// EncodeVote renders the on-disk form of v.
func EncodeVote(v *models.Vote) ([]byte, error) {
	return json.MarshalIndent(voteFile{
		Subject:     v.Subject,
		Vote:        v.Vote,
		SubjectType: v.SubjectType,
		CreatedAt:   v.CreatedAt.UTC(),
		UpdatedAt:   v.UpdatedAt.UTC(),
	}, "", "  ")
}

// Record is one decoded replica file.
type Record struct {
	Kind    Kind
	URL     string
	Profile *models.Profile
	Post    *models.Post
	Vote    *models.Vote
}

// Decode parses the file at p inside origin. Identity (origin and URL) comes
// from the file's location, never from its contents. fallback is used as the
// creation time when the record does not carry one.
func Decode(origin, p string, data []byte, fallback time.Time) (*Record, error) {
	origin = urlnorm.CanonicalOrigin(origin)
	url := urlnorm.Join(origin, p)
	rec := &Record{Kind: KindOf(p), URL: url}

	switch rec.Kind {
	case KindProfile:
		var f profileFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("records: decode profile %s: %w", url, err)
		}
		prof := &models.Profile{
			Origin:    origin,
			URL:       url,
			Name:      f.Name,
			Bio:       f.Bio,
			Avatar:    f.Avatar,
			CreatedAt: orTime(f.CreatedAt, fallback),
			UpdatedAt: orTime(f.UpdatedAt, fallback),
		}
		prof.SetFollows(f.Follows)
		rec.Profile = prof

	case KindPost:
		var f postFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("records: decode post %s: %w", url, err)
		}
		rec.Post = &models.Post{
			URL:          url,
			Origin:       origin,
			Text:         f.Text,
			Mentions:     CanonicalMentions(f.Mentions),
			ThreadParent: canonicalOrEmpty(f.ThreadParent),
			ThreadRoot:   canonicalOrEmpty(f.ThreadRoot),
			CreatedAt:    orTime(f.CreatedAt, fallback),
		}

	case KindVote:
		var f voteFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("records: decode vote %s: %w", url, err)
		}
		if strings.TrimSpace(f.Subject) == "" {
			return nil, fmt.Errorf("records: vote %s has no subject", url)
		}
		rec.Vote = &models.Vote{
			URL:         url,
			Origin:      origin,
			Subject:     urlnorm.CanonicalURL(f.Subject),
			Vote:        models.ClampVote(f.Vote),
			SubjectType: f.SubjectType,
			CreatedAt:   orTime(f.CreatedAt, fallback),
			UpdatedAt:   orTime(f.UpdatedAt, fallback),
		}

	default:
		return nil, fmt.Errorf("records: unknown record path %s", p)
	}
	return rec, nil
}

// CanonicalMentions canonicalizes every mention target to its origin.
func CanonicalMentions(in []models.Mention) []models.Mention {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Mention, len(in))
	for i, m := range in {
		out[i] = models.Mention{Name: m.Name, URL: urlnorm.CanonicalOrigin(m.URL)}
	}
	return out
}

func canonicalOrEmpty(u string) string {
	if strings.TrimSpace(u) == "" {
		return ""
	}
	return urlnorm.CanonicalURL(u)
}

func orTime(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback.UTC()
	}
	return t.UTC()
}
