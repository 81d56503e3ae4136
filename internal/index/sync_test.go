package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/monitoring"
	"github.com/starford/agora/internal/replica"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testRegistry(t *testing.T, names ...string) *replica.Registry {
	t.Helper()
	reg, err := replica.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if _, err := reg.Create(n); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func writeReplicaFile(t *testing.T, reg *replica.Registry, origin, p, content string) {
	t.Helper()
	store, err := reg.Lookup(origin)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Write(p, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind + ":" + ev.URL
	}
	return out
}

func TestIndexFileDerivesNotifications(t *testing.T) {
	db := testDB(t)
	m := monitoring.New()
	var log eventLog
	ix := NewIndexer(db, "dweb://alice", quietLogger(), WithMetrics(m), WithEventCallback(log.add))
	ctx := context.Background()

	files := []struct{ origin, path, body string }{
		{"dweb://alice", "posts/a.json", `{"text":"root","createdAt":"2024-03-01T12:00:00Z"}`},
		{"dweb://bob", "posts/b.json", `{"text":"hey @alice","mentions":[{"name":"alice","url":"dweb://Alice/"}],"createdAt":"2024-03-01T12:01:00Z"}`},
		{"dweb://bob", "posts/c.json", `{"text":"reply","threadParent":"dweb://alice/posts/a.json","threadRoot":"dweb://alice/posts/a.json","createdAt":"2024-03-01T12:02:00Z"}`},
		{"dweb://bob", "votes/v.json", `{"subject":"dweb://alice/posts/a.json","vote":1,"createdAt":"2024-03-01T12:03:00Z"}`},
		{"dweb://bob", "votes/w.json", `{"subject":"https://example.com","vote":1,"createdAt":"2024-03-01T12:04:00Z"}`},
		{"dweb://alice", "votes/x.json", `{"subject":"dweb://alice/posts/a.json","vote":1,"createdAt":"2024-03-01T12:05:00Z"}`},
	}
	for _, f := range files {
		if _, err := ix.IndexFile(ctx, f.origin, f.path, []byte(f.body), t0); err != nil {
			t.Fatalf("IndexFile %s/%s: %v", f.origin, f.path, err)
		}
	}

	got, err := db.ListNotifications(ctx, Range{})
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Notification{
		{Type: models.NotificationMention, Origin: "dweb://bob", URL: "dweb://bob/posts/b.json", Subject: "dweb://alice"},
		{Type: models.NotificationReply, Origin: "dweb://bob", URL: "dweb://bob/posts/c.json", Subject: "dweb://alice/posts/a.json"},
		{Type: models.NotificationVote, Origin: "dweb://bob", URL: "dweb://bob/votes/v.json", Subject: "dweb://alice/posts/a.json"},
	}
	if len(got) != len(want) {
		t.Fatalf("notifications = %+v", got)
	}
	for i, w := range want {
		g := got[i]
		if g.Type != w.Type || g.Origin != w.Origin || g.URL != w.URL || g.Subject != w.Subject {
			t.Errorf("notification %d = %+v, want %+v", i, g, w)
		}
	}

	// Re-indexing the same file never duplicates a notification.
	if _, err := ix.IndexFile(ctx, files[1].origin, files[1].path, []byte(files[1].body), t0); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.CountNotifications(ctx, Range{}); n != 3 {
		t.Errorf("notifications after re-index = %d, want 3", n)
	}

	if got := testutil.ToFloat64(m.NotificationsDerived.WithLabelValues("mention")); got != 1 {
		t.Errorf("mention counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RecordsIndexed.WithLabelValues("post")); got != 4 {
		t.Errorf("indexed posts = %v, want 4", got)
	}
	if n := len(log.kinds()); n != 3 {
		t.Errorf("notification events = %v", log.kinds())
	}
}

func TestIndexFileRejectsBadRecord(t *testing.T) {
	db := testDB(t)
	m := monitoring.New()
	ix := NewIndexer(db, "", quietLogger(), WithMetrics(m))

	if _, err := ix.IndexFile(context.Background(), "dweb://bob", "votes/v.json", []byte(`{"vote":1}`), t0); err == nil {
		t.Fatal("vote without subject should fail")
	}
	if got := testutil.ToFloat64(m.RecordIndexErrors.WithLabelValues("vote")); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

func TestSync(t *testing.T) {
	db := testDB(t)
	reg := testRegistry(t, "alice", "bob")
	ix := NewIndexer(db, "dweb://alice", quietLogger())
	ctx := context.Background()

	writeReplicaFile(t, reg, "dweb://alice", "profile.json", `{"name":"Alice","follows":[{"url":"dweb://bob"}]}`)
	writeReplicaFile(t, reg, "dweb://bob", "profile.json", `{"name":"Bob"}`)
	writeReplicaFile(t, reg, "dweb://bob", "posts/1.json", `{"text":"hi @alice","mentions":[{"url":"dweb://alice"}]}`)
	writeReplicaFile(t, reg, "dweb://bob", "notes.txt.json.bak", `ignored`)

	if err := Sync(ctx, ix, reg, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if p, err := db.GetProfile(ctx, "dweb://bob"); err != nil || p.Name != "Bob" {
		t.Fatalf("bob profile = %+v, %v", p, err)
	}
	if n, _ := db.CountFollowers(ctx, "dweb://bob"); n != 1 {
		t.Errorf("bob followers = %d, want 1", n)
	}
	if n, _ := db.CountNotifications(ctx, Range{}); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}

	// A removed file disappears from the index on the next pass.
	store, _ := reg.Lookup("dweb://bob")
	if err := os.Remove(filepath.Join(store.Root(), "posts", "1.json")); err != nil {
		t.Fatal(err)
	}
	if err := Sync(ctx, ix, reg, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n, _ := db.CountPosts(ctx, PostQuery{}); n != 0 {
		t.Errorf("posts after removal = %d, want 0", n)
	}
	if n, _ := db.CountNotifications(ctx, Range{}); n != 0 {
		t.Errorf("notifications after removal = %d, want 0", n)
	}
}

func TestSyncSkipsUnchanged(t *testing.T) {
	db := testDB(t)
	reg := testRegistry(t, "bob")
	m := monitoring.New()
	ix := NewIndexer(db, "", quietLogger(), WithMetrics(m))
	ctx := context.Background()

	writeReplicaFile(t, reg, "dweb://bob", "posts/1.json", `{"text":"one"}`)
	for i := 0; i < 2; i++ {
		if err := Sync(ctx, ix, reg, quietLogger()); err != nil {
			t.Fatal(err)
		}
	}
	if got := testutil.ToFloat64(m.RecordsIndexed.WithLabelValues("post")); got != 1 {
		t.Errorf("post indexed %v times, want 1", got)
	}
}
