package index

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/starford/agora/internal/apperr"
	"github.com/starford/agora/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "agora-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(min int) time.Time {
	return t0.Add(time.Duration(min) * time.Minute)
}

func putPost(t *testing.T, db *DB, url, origin, text string, created time.Time) {
	t.Helper()
	p := &models.Post{URL: url, Origin: origin, Text: text, CreatedAt: created}
	if err := db.PutPost(context.Background(), p, Source{Path: "posts/x.json", Checksum: text}); err != nil {
		t.Fatalf("PutPost: %v", err)
	}
}

func postTexts(ps []*models.Post) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Text
	}
	return out
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"records", "profiles", "profile_follows", "posts", "votes", "notifications"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestProfileRoundTripAndFollowers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	alice := &models.Profile{Origin: "dweb://alice", URL: "dweb://alice/profile.json", Name: "Alice", CreatedAt: at(0), UpdatedAt: at(0)}
	alice.SetFollows([]models.Follow{{URL: "dweb://bob", Name: "Bob"}, {URL: "dweb://carla"}})
	carla := &models.Profile{Origin: "dweb://carla", URL: "dweb://carla/profile.json", Name: "Carla", CreatedAt: at(1), UpdatedAt: at(1)}
	carla.SetFollows([]models.Follow{{URL: "dweb://bob"}})

	for _, p := range []*models.Profile{alice, carla} {
		if err := db.PutProfile(ctx, p, Source{Path: "profile.json", Checksum: p.Name}); err != nil {
			t.Fatalf("PutProfile: %v", err)
		}
	}

	got, err := db.GetProfile(ctx, "dweb://alice")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Name != "Alice" || !got.CreatedAt.Equal(at(0)) {
		t.Errorf("profile = %+v", got)
	}
	if !reflect.DeepEqual(got.FollowURLs, []string{"dweb://bob", "dweb://carla"}) {
		t.Errorf("FollowURLs = %v", got.FollowURLs)
	}

	followers, err := db.ListFollowers(ctx, "dweb://bob")
	if err != nil {
		t.Fatalf("ListFollowers: %v", err)
	}
	if len(followers) != 2 || followers[0].Origin != "dweb://alice" || followers[1].Origin != "dweb://carla" {
		t.Errorf("followers = %+v", followers)
	}
	if n, _ := db.CountFollowers(ctx, "dweb://bob"); n != 2 {
		t.Errorf("CountFollowers = %d, want 2", n)
	}

	// Rewriting follows replaces the followUrls rows.
	alice.SetFollows([]models.Follow{{URL: "dweb://carla"}})
	alice.UpdatedAt = at(5)
	if err := db.PutProfile(ctx, alice, Source{Path: "profile.json", Checksum: "v2"}); err != nil {
		t.Fatalf("PutProfile: %v", err)
	}
	if n, _ := db.CountFollowers(ctx, "dweb://bob"); n != 1 {
		t.Errorf("CountFollowers after unfollow = %d, want 1", n)
	}
	got, _ = db.GetProfile(ctx, "dweb://alice")
	if !got.CreatedAt.Equal(at(0)) || !got.UpdatedAt.Equal(at(5)) {
		t.Errorf("timestamps after update: created %v updated %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetProfile(context.Background(), "dweb://nobody")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestChecksums(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	putPost(t, db, "dweb://a/posts/1.json", "dweb://a", "one", at(0))

	cs, err := db.Checksum(ctx, "dweb://a/posts/1.json")
	if err != nil || cs != "one" {
		t.Fatalf("Checksum = %q, %v", cs, err)
	}
	if cs, _ := db.Checksum(ctx, "dweb://a/posts/missing.json"); cs != "" {
		t.Errorf("missing checksum = %q", cs)
	}
	all, err := db.Checksums(ctx)
	if err != nil {
		t.Fatalf("Checksums: %v", err)
	}
	if !reflect.DeepEqual(all, map[string]string{"dweb://a/posts/1.json": "one"}) {
		t.Errorf("Checksums = %v", all)
	}
}

func TestListPostsRangeAndPaging(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for i, text := range []string{"First", "Second", "Third", "Fourth"} {
		putPost(t, db, "dweb://a/posts/"+text+".json", "dweb://a", text, at(i))
	}

	cases := []struct {
		name string
		q    PostQuery
		want []string
	}{
		{"all", PostQuery{}, []string{"First", "Second", "Third", "Fourth"}},
		{"reverse", PostQuery{Range: Range{Reverse: true}}, []string{"Fourth", "Third", "Second", "First"}},
		{"after inclusive", PostQuery{Range: Range{After: at(1)}}, []string{"Second", "Third", "Fourth"}},
		{"before exclusive", PostQuery{Range: Range{Before: at(2)}}, []string{"First", "Second"}},
		{"window", PostQuery{Range: Range{After: at(1), Before: at(3)}}, []string{"Second", "Third"}},
		{"offset only", PostQuery{Range: Range{Offset: 3}}, []string{"Fourth"}},
		{"limit", PostQuery{Range: Range{Limit: 2}}, []string{"First", "Second"}},
		{"reverse then page", PostQuery{Range: Range{Reverse: true, Offset: 1, Limit: 2}}, []string{"Third", "Second"}},
		{"empty window", PostQuery{Range: Range{After: at(3), Before: at(3)}}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := db.ListPosts(ctx, tc.q)
			if err != nil {
				t.Fatalf("ListPosts: %v", err)
			}
			if texts := postTexts(got); !reflect.DeepEqual(texts, tc.want) {
				t.Errorf("posts = %v, want %v", texts, tc.want)
			}
			n, err := db.CountPosts(ctx, tc.q)
			if err != nil {
				t.Fatalf("CountPosts: %v", err)
			}
			if n != len(tc.want) {
				t.Errorf("CountPosts = %d, want %d", n, len(tc.want))
			}
		})
	}
}

func TestListPostsEqualTimestampsKeepInsertionOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	putPost(t, db, "dweb://a/posts/1.json", "dweb://a", "one", at(0))
	putPost(t, db, "dweb://b/posts/1.json", "dweb://b", "two", at(0))

	got, _ := db.ListPosts(ctx, PostQuery{})
	if texts := postTexts(got); !reflect.DeepEqual(texts, []string{"one", "two"}) {
		t.Errorf("posts = %v", texts)
	}
	got, _ = db.ListPosts(ctx, PostQuery{Range: Range{Reverse: true}})
	if texts := postTexts(got); !reflect.DeepEqual(texts, []string{"two", "one"}) {
		t.Errorf("reversed posts = %v", texts)
	}
}

func TestRepliesAndRootOnly(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	root := "dweb://a/posts/root.json"
	putPost(t, db, root, "dweb://a", "root", at(0))
	for i, u := range []string{"dweb://b/posts/r1.json", "dweb://c/posts/r2.json"} {
		p := &models.Post{URL: u, Origin: "dweb://x", Text: u, ThreadParent: root, ThreadRoot: root, CreatedAt: at(i + 1)}
		if err := db.PutPost(ctx, p, Source{Path: "posts/r.json"}); err != nil {
			t.Fatal(err)
		}
	}

	replies, err := db.ListReplies(ctx, root)
	if err != nil || len(replies) != 2 {
		t.Fatalf("ListReplies = %v, %v", replies, err)
	}
	if n, _ := db.CountReplies(ctx, root); n != 2 {
		t.Errorf("CountReplies = %d", n)
	}
	roots, _ := db.ListPosts(ctx, PostQuery{RootOnly: true})
	if texts := postTexts(roots); !reflect.DeepEqual(texts, []string{"root"}) {
		t.Errorf("root posts = %v", texts)
	}
}

func TestVoteUpsertKeyedBySubjectAndOrigin(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	subject := "https://example.com"
	put := func(url, origin string, vote int, when time.Time) {
		t.Helper()
		v := &models.Vote{URL: url, Origin: origin, Subject: subject, Vote: vote, CreatedAt: when, UpdatedAt: when}
		if err := db.PutVote(ctx, v, Source{Path: "votes/x.json"}); err != nil {
			t.Fatalf("PutVote: %v", err)
		}
	}
	put("dweb://a/votes/1.json", "dweb://a", 1, at(0))
	put("dweb://b/votes/1.json", "dweb://b", 1, at(1))
	put("dweb://a/votes/1.json", "dweb://a", -5, at(2))

	votes, err := db.ListVotesFor(ctx, subject)
	if err != nil {
		t.Fatalf("ListVotesFor: %v", err)
	}
	if len(votes) != 2 {
		t.Fatalf("votes = %+v", votes)
	}
	if votes[0].Origin != "dweb://a" || votes[0].Vote != -1 {
		t.Errorf("first vote = %+v, want dweb://a with -1", votes[0])
	}
	if !votes[0].CreatedAt.Equal(at(0)) || !votes[0].UpdatedAt.Equal(at(2)) {
		t.Errorf("re-vote timestamps = %v / %v", votes[0].CreatedAt, votes[0].UpdatedAt)
	}
}

func TestVoteFileMovedToOtherSubject(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	v := &models.Vote{URL: "dweb://a/votes/1.json", Origin: "dweb://a", Subject: "https://one.example", Vote: 1, CreatedAt: at(0), UpdatedAt: at(0)}
	if err := db.PutVote(ctx, v, Source{}); err != nil {
		t.Fatal(err)
	}
	v.Subject = "https://two.example"
	if err := db.PutVote(ctx, v, Source{}); err != nil {
		t.Fatal(err)
	}
	if votes, _ := db.ListVotesFor(ctx, "https://one.example"); len(votes) != 0 {
		t.Errorf("old subject still has votes: %+v", votes)
	}
	if votes, _ := db.ListVotesFor(ctx, "https://two.example"); len(votes) != 1 {
		t.Errorf("new subject votes = %+v", votes)
	}
}

func TestNotificationsDeduplicatedAndRanged(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for i, u := range []string{"dweb://b/posts/1.json", "dweb://c/posts/1.json", "dweb://d/posts/1.json"} {
		n := &models.Notification{Type: models.NotificationMention, Origin: "dweb://x", URL: u, Subject: "dweb://me", CreatedAt: at(i)}
		created, err := db.PutNotification(ctx, n)
		if err != nil || !created {
			t.Fatalf("PutNotification = %v, %v", created, err)
		}
	}
	dup := &models.Notification{Type: models.NotificationMention, URL: "dweb://b/posts/1.json", CreatedAt: at(9)}
	if created, _ := db.PutNotification(ctx, dup); created {
		t.Error("duplicate (type, url) should not be stored")
	}

	got, err := db.ListNotifications(ctx, Range{Reverse: true, Limit: 2})
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(got) != 2 || got[0].URL != "dweb://d/posts/1.json" || got[1].URL != "dweb://c/posts/1.json" {
		t.Errorf("notifications = %+v", got)
	}
	if n, _ := db.CountNotifications(ctx, Range{After: at(1)}); n != 2 {
		t.Errorf("CountNotifications = %d, want 2", n)
	}
}

func TestDeleteRecord(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	url := "dweb://b/posts/1.json"
	putPost(t, db, url, "dweb://b", "hi", at(0))
	_, _ = db.PutNotification(ctx, &models.Notification{Type: models.NotificationMention, URL: url, CreatedAt: at(0)})

	prof := &models.Profile{Origin: "dweb://b", URL: "dweb://b/profile.json", CreatedAt: at(0), UpdatedAt: at(0)}
	prof.SetFollows([]models.Follow{{URL: "dweb://a"}})
	if err := db.PutProfile(ctx, prof, Source{Path: "profile.json"}); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteRecord(ctx, url); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := db.GetPost(ctx, url); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("post still present: %v", err)
	}
	if n, _ := db.CountNotifications(ctx, Range{}); n != 0 {
		t.Errorf("notifications left = %d", n)
	}

	if err := db.DeleteRecord(ctx, prof.URL); err != nil {
		t.Fatalf("DeleteRecord profile: %v", err)
	}
	if _, err := db.GetProfile(ctx, "dweb://b"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("profile still present: %v", err)
	}
	if n, _ := db.CountFollowers(ctx, "dweb://a"); n != 0 {
		t.Errorf("follow rows left = %d", n)
	}
}
