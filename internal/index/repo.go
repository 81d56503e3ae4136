package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/agora/internal/apperr"
	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/records"
	"github.com/starford/agora/internal/urlnorm"
)

// Source identifies the replica file a record was indexed from.
type Source struct {
	Path     string
	Checksum string
}

type scanner interface {
	Scan(dest ...any) error
}

const profileCols = `p.origin, p.url, p.name, p.bio, p.avatar, p.follows, p.created_at, p.updated_at`

func scanProfile(s scanner) (*models.Profile, error) {
	var (
		p                models.Profile
		follows          string
		created, updated int64
	)
	if err := s.Scan(&p.Origin, &p.URL, &p.Name, &p.Bio, &p.Avatar, &follows, &created, &updated); err != nil {
		return nil, err
	}
	var fl []models.Follow
	if err := json.Unmarshal([]byte(follows), &fl); err != nil {
		return nil, fmt.Errorf("index: decode follows of %s: %w", p.Origin, err)
	}
	p.SetFollows(fl)
	p.CreatedAt = fromNanos(created)
	p.UpdatedAt = fromNanos(updated)
	return &p, nil
}

const postCols = `url, origin, text, mentions, thread_parent, thread_root, created_at`

func scanPost(s scanner) (*models.Post, error) {
	var (
		p        models.Post
		mentions string
		created  int64
	)
	if err := s.Scan(&p.URL, &p.Origin, &p.Text, &mentions, &p.ThreadParent, &p.ThreadRoot, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(mentions), &p.Mentions); err != nil {
		return nil, fmt.Errorf("index: decode mentions of %s: %w", p.URL, err)
	}
	if len(p.Mentions) == 0 {
		p.Mentions = nil
	}
	p.CreatedAt = fromNanos(created)
	return &p, nil
}

const voteCols = `url, origin, subject, vote, subject_type, created_at, updated_at`

func scanVote(s scanner) (models.Vote, error) {
	var (
		v                models.Vote
		created, updated int64
	)
	if err := s.Scan(&v.URL, &v.Origin, &v.Subject, &v.Vote, &v.SubjectType, &created, &updated); err != nil {
		return v, err
	}
	v.CreatedAt = fromNanos(created)
	v.UpdatedAt = fromNanos(updated)
	return v, nil
}

const notificationCols = `type, url, origin, subject, created_at`

func scanNotification(s scanner) (*models.Notification, error) {
	var (
		n       models.Notification
		created int64
	)
	if err := s.Scan(&n.Type, &n.URL, &n.Origin, &n.Subject, &created); err != nil {
		return nil, err
	}
	n.CreatedAt = fromNanos(created)
	return &n, nil
}

func putSource(ctx context.Context, tx *sql.Tx, url, origin string, kind records.Kind, src Source) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (url, origin, path, kind, checksum)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			checksum = excluded.checksum
	`, url, origin, src.Path, string(kind), src.Checksum)
	if err != nil {
		return fmt.Errorf("index: upsert record %s: %w", url, err)
	}
	return nil
}

// PutProfile upserts a profile and rewrites its followUrls rows in one transaction.
func (db *DB) PutProfile(ctx context.Context, p *models.Profile, src Source) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	follows, err := json.Marshal(p.Follows)
	if err != nil {
		return fmt.Errorf("index: encode follows: %w", err)
	}
	if p.Follows == nil {
		follows = []byte("[]")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (origin, url, name, bio, avatar, follows, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(origin) DO UPDATE SET
			url        = excluded.url,
			name       = excluded.name,
			bio        = excluded.bio,
			avatar     = excluded.avatar,
			follows    = excluded.follows,
			updated_at = excluded.updated_at
	`, p.Origin, p.URL, p.Name, p.Bio, p.Avatar, string(follows), toNanos(p.CreatedAt), toNanos(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("index: upsert profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_follows WHERE origin = ?`, p.Origin); err != nil {
		return fmt.Errorf("index: clear follows: %w", err)
	}
	if len(p.FollowURLs) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO profile_follows (origin, target, position) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare follow insert: %w", err)
		}
		defer stmt.Close()
		for i, target := range p.FollowURLs {
			if _, err := stmt.ExecContext(ctx, p.Origin, target, i); err != nil {
				return fmt.Errorf("index: insert follow: %w", err)
			}
		}
	}

	if err := putSource(ctx, tx, p.URL, p.Origin, records.KindProfile, src); err != nil {
		return err
	}
	return tx.Commit()
}

// PutPost upserts a post.
func (db *DB) PutPost(ctx context.Context, p *models.Post, src Source) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	mentions, err := json.Marshal(p.Mentions)
	if err != nil {
		return fmt.Errorf("index: encode mentions: %w", err)
	}
	if p.Mentions == nil {
		mentions = []byte("[]")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (url, origin, text, mentions, thread_parent, thread_root, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			text          = excluded.text,
			mentions      = excluded.mentions,
			thread_parent = excluded.thread_parent,
			thread_root   = excluded.thread_root,
			created_at    = excluded.created_at
	`, p.URL, p.Origin, p.Text, string(mentions), p.ThreadParent, p.ThreadRoot, toNanos(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("index: upsert post: %w", err)
	}

	if err := putSource(ctx, tx, p.URL, p.Origin, records.KindPost, src); err != nil {
		return err
	}
	return tx.Commit()
}

// PutVote upserts a vote keyed by (subject, origin). A re-vote keeps the
// original insertion position so tallies stay in first-vote order.
func (db *DB) PutVote(ctx context.Context, v *models.Vote, src Source) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// The file at this URL may have been rewritten with another subject.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM votes WHERE url = ? AND (subject != ? OR origin != ?)`,
		v.URL, v.Subject, v.Origin); err != nil {
		return fmt.Errorf("index: clear moved vote: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO votes (url, origin, subject, vote, subject_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subject, origin) DO UPDATE SET
			url          = excluded.url,
			vote         = excluded.vote,
			subject_type = excluded.subject_type,
			updated_at   = excluded.updated_at
	`, v.URL, v.Origin, v.Subject, models.ClampVote(v.Vote), v.SubjectType, toNanos(v.CreatedAt), toNanos(v.UpdatedAt))
	if err != nil {
		return fmt.Errorf("index: upsert vote: %w", err)
	}

	if err := putSource(ctx, tx, v.URL, v.Origin, records.KindVote, src); err != nil {
		return err
	}
	return tx.Commit()
}

// PutNotification stores n unless an entry with the same type and URL exists.
// It reports whether a new entry was written.
func (db *DB) PutNotification(ctx context.Context, n *models.Notification) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO notifications (type, url, origin, subject, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, url) DO NOTHING
	`, string(n.Type), n.URL, n.Origin, n.Subject, toNanos(n.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("index: insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("index: insert notification: %w", err)
	}
	return affected > 0, nil
}

// DeleteRecord removes the record indexed from url along with the
// notifications derived from it.
func (db *DB) DeleteRecord(ctx context.Context, url string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmts := []string{
		`DELETE FROM posts WHERE url = ?`,
		`DELETE FROM votes WHERE url = ?`,
		`DELETE FROM notifications WHERE url = ?`,
		`DELETE FROM records WHERE url = ?`,
	}
	if records.KindOf(urlnorm.RecordPath(url)) == records.KindProfile {
		origin := urlnorm.CanonicalOrigin(url)
		if _, err := tx.ExecContext(ctx, `DELETE FROM profile_follows WHERE origin = ?`, origin); err != nil {
			return fmt.Errorf("index: delete follows: %w", err)
		}
		stmts = append(stmts, `DELETE FROM profiles WHERE url = ?`)
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, url); err != nil {
			return fmt.Errorf("index: delete %s: %w", url, err)
		}
	}
	return tx.Commit()
}

// Checksums returns the stored checksum of every indexed record, keyed by URL.
func (db *DB) Checksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT url, checksum FROM records`)
	if err != nil {
		return nil, fmt.Errorf("index: checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var u, cs string
		if err := rows.Scan(&u, &cs); err != nil {
			return nil, err
		}
		out[u] = cs
	}
	return out, rows.Err()
}

// Checksum returns the stored checksum of the record at url, or "" if it is
// not indexed.
func (db *DB) Checksum(ctx context.Context, url string) (string, error) {
	var cs string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM records WHERE url = ?`, url).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// GetProfile returns the profile of origin or apperr.ErrNotFound.
func (db *DB) GetProfile(ctx context.Context, origin string) (*models.Profile, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+profileCols+` FROM profiles p WHERE p.origin = ?`, origin)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: profile %s: %w", origin, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get profile: %w", err)
	}
	return p, nil
}

// ListFollowers returns every profile whose followUrls contains target.
func (db *DB) ListFollowers(ctx context.Context, target string) ([]*models.Profile, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+profileCols+`
		FROM profiles p
		JOIN profile_follows f ON f.origin = p.origin
		WHERE f.target = ?
		ORDER BY p.seq
	`, target)
	if err != nil {
		return nil, fmt.Errorf("index: list followers: %w", err)
	}
	defer rows.Close()

	var out []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountFollowers counts the profiles whose followUrls contains target.
func (db *DB) CountFollowers(ctx context.Context, target string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profile_follows WHERE target = ?`, target).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("index: count followers: %w", err)
	}
	return n, nil
}

// GetPost returns the post at url or apperr.ErrNotFound.
func (db *DB) GetPost(ctx context.Context, url string) (*models.Post, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+postCols+` FROM posts WHERE url = ?`, url)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: post %s: %w", url, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get post: %w", err)
	}
	return p, nil
}

func (db *DB) queryPosts(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query posts: %w", err)
	}
	defer rows.Close()

	var out []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPosts returns the posts selected by q.
func (db *DB) ListPosts(ctx context.Context, q PostQuery) ([]*models.Post, error) {
	tail, args := q.clause()
	return db.queryPosts(ctx, `SELECT `+postCols+` FROM posts`+tail, args...)
}

// CountPosts counts the posts selected by q, paging included.
func (db *DB) CountPosts(ctx context.Context, q PostQuery) (int, error) {
	tail, args := q.clause()
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM (SELECT seq FROM posts`+tail+`)`, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count posts: %w", err)
	}
	return n, nil
}

// ListReplies returns the direct replies of parentURL in creation order.
func (db *DB) ListReplies(ctx context.Context, parentURL string) ([]*models.Post, error) {
	return db.queryPosts(ctx,
		`SELECT `+postCols+` FROM posts WHERE thread_parent = ? ORDER BY created_at, seq`, parentURL)
}

// CountReplies counts the direct replies of parentURL.
func (db *DB) CountReplies(ctx context.Context, parentURL string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE thread_parent = ?`, parentURL).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count replies: %w", err)
	}
	return n, nil
}

// ListVotesFor returns every vote on subject in insertion order.
func (db *DB) ListVotesFor(ctx context.Context, subject string) ([]models.Vote, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+voteCols+` FROM votes WHERE subject = ? ORDER BY seq`, subject)
	if err != nil {
		return nil, fmt.Errorf("index: list votes: %w", err)
	}
	defer rows.Close()

	var out []models.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListNotifications returns the notifications selected by r.
func (db *DB) ListNotifications(ctx context.Context, r Range) ([]*models.Notification, error) {
	tail, args := r.clause(nil, nil)
	rows, err := db.conn.QueryContext(ctx, `SELECT `+notificationCols+` FROM notifications`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountNotifications counts the notifications selected by r, paging included.
func (db *DB) CountNotifications(ctx context.Context, r Range) (int, error) {
	tail, args := r.clause(nil, nil)
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT seq FROM notifications`+tail+`)`, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count notifications: %w", err)
	}
	return n, nil
}
