package models

import "time"

// Mention references another origin from a post's text.
type Mention struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
}

// Post is a post record plus the enrichment fields filled in by queries.
//
// Replies is nil for a post without replies; it is never an empty slice.
type Post struct {
	URL          string    `json:"url"`
	Origin       string    `json:"origin"`
	Text         string    `json:"text"`
	Mentions     []Mention `json:"mentions,omitempty"`
	ThreadParent string    `json:"threadParent,omitempty"`
	ThreadRoot   string    `json:"threadRoot,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`

	Author     *Profile `json:"author,omitempty"`
	Votes      *Tally   `json:"votes,omitempty"`
	ReplyCount *int     `json:"replyCount,omitempty"`
	Replies    []*Post  `json:"replies,omitempty"`
	Parent     *Post    `json:"parent,omitempty"`
}

// IsRoot reports whether the post starts a thread.
func (p *Post) IsRoot() bool {
	return p.ThreadParent == ""
}

// MentionsOrigin reports whether the post mentions origin.
func (p *Post) MentionsOrigin(origin string) bool {
	for _, m := range p.Mentions {
		if m.URL == origin {
			return true
		}
	}
	return false
}
