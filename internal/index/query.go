package index

import (
	"fmt"
	"strings"
	"time"
)

// Range selects records by creation time and pages through them.
//
// When After or Before is set the selection is the half-open interval
// [After, Before); a zero bound is open. Without bounds every record is
// selected in creation order. Reverse flips that order before Offset and
// Limit are applied.
type Range struct {
	After   time.Time
	Before  time.Time
	Offset  int
	Limit   int
	Reverse bool
}

// PostQuery selects posts.
type PostQuery struct {
	Range
	RootOnly bool
}

// clause renders the WHERE/ORDER BY/LIMIT tail of a select over a table with
// created_at and seq columns. seq breaks ties between equal timestamps.
func (r Range) clause(where []string, args []any) (string, []any) {
	if !r.After.IsZero() || !r.Before.IsZero() {
		var after int64
		if !r.After.IsZero() {
			after = toNanos(r.After)
		}
		where = append(where, "created_at >= ?")
		args = append(args, after)
		if !r.Before.IsZero() {
			where = append(where, "created_at < ?")
			args = append(args, toNanos(r.Before))
		}
	}

	var sb strings.Builder
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	dir := "ASC"
	if r.Reverse {
		dir = "DESC"
	}
	fmt.Fprintf(&sb, " ORDER BY created_at %s, seq %s", dir, dir)

	if r.Limit > 0 || r.Offset > 0 {
		limit := -1
		if r.Limit > 0 {
			limit = r.Limit
		}
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, max(r.Offset, 0))
	}
	return sb.String(), args
}

func (q PostQuery) clause() (string, []any) {
	var where []string
	if q.RootOnly {
		where = append(where, "thread_parent = ''")
	}
	return q.Range.clause(where, nil)
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
