package models

import "time"

// Vote is one origin's vote on a subject URL. The subject need not be a post.
type Vote struct {
	URL         string    `json:"url"`
	Origin      string    `json:"origin"`
	Subject     string    `json:"subject"`
	Vote        int       `json:"vote"`
	SubjectType string    `json:"subjectType,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Tally aggregates the votes of one subject.
type Tally struct {
	Up       int      `json:"up"`
	Down     int      `json:"down"`
	Value    int      `json:"value"`
	UpVoters []string `json:"upVoters"`
}

// ClampVote maps any integer onto -1, 0 or 1.
func ClampVote(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// TallyVotes folds votes, in the order given, into a Tally. Zero votes count
// towards neither side.
func TallyVotes(votes []Vote) Tally {
	t := Tally{UpVoters: []string{}}
	for _, v := range votes {
		switch ClampVote(v.Vote) {
		case 1:
			t.Up++
			t.UpVoters = append(t.UpVoters, v.Origin)
		case -1:
			t.Down++
		}
	}
	t.Value = t.Up - t.Down
	return t
}
