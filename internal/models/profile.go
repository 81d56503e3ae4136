// Package models defines the domain types shared by the social, feed and
// notification services.
package models

import (
	"time"

	"github.com/starford/agora/internal/urlnorm"
)

// Follow is one entry of a profile's follow list.
type Follow struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// Profile is the single profile record of one origin.
//
// FollowURLs is derived from Follows and must only change through SetFollows,
// AddFollow or RemoveFollow so the two never disagree.
type Profile struct {
	Origin     string    `json:"origin"`
	URL        string    `json:"url"`
	Name       string    `json:"name,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	Avatar     string    `json:"avatar,omitempty"`
	Follows    []Follow  `json:"follows"`
	FollowURLs []string  `json:"followUrls"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SetFollows replaces the follow list. Targets are canonicalized to origins,
// later duplicates are dropped and FollowURLs is recomputed.
func (p *Profile) SetFollows(follows []Follow) {
	out := make([]Follow, 0, len(follows))
	seen := make(map[string]struct{}, len(follows))
	for _, f := range follows {
		target := urlnorm.CanonicalOrigin(f.URL)
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, Follow{URL: target, Name: f.Name})
	}
	p.Follows = out
	p.syncFollowURLs()
}

// AddFollow appends target unless it is already followed. It reports whether
// the list changed.
func (p *Profile) AddFollow(target, name string) bool {
	target = urlnorm.CanonicalOrigin(target)
	if p.IsFollowing(target) {
		return false
	}
	p.SetFollows(append(p.Follows, Follow{URL: target, Name: name}))
	return true
}

// RemoveFollow drops target from the follow list and reports whether it was present.
func (p *Profile) RemoveFollow(target string) bool {
	target = urlnorm.CanonicalOrigin(target)
	kept := make([]Follow, 0, len(p.Follows))
	for _, f := range p.Follows {
		if urlnorm.CanonicalOrigin(f.URL) != target {
			kept = append(kept, f)
		}
	}
	removed := len(kept) != len(p.Follows)
	p.SetFollows(kept)
	return removed
}

// IsFollowing reports whether target's origin is in FollowURLs.
func (p *Profile) IsFollowing(target string) bool {
	target = urlnorm.CanonicalOrigin(target)
	for _, u := range p.FollowURLs {
		if u == target {
			return true
		}
	}
	return false
}

func (p *Profile) syncFollowURLs() {
	urls := make([]string, len(p.Follows))
	for i, f := range p.Follows {
		urls[i] = f.URL
	}
	p.FollowURLs = urls
}
