package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/starford/agora/internal/apperr"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T, names ...string) (*DB, *replicaEnv, *eventLog) {
	t.Helper()
	db := testDB(t)
	reg := testRegistry(t, names...)
	var log eventLog
	ix := NewIndexer(db, "dweb://alice", quietLogger(), WithEventCallback(log.add))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, ix, reg, quietLogger())
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return db, &replicaEnv{root: reg.Root()}, &log
}

type replicaEnv struct {
	root string
}

func (e *replicaEnv) write(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(e.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func hasEvent(log *eventLog, want string) func() bool {
	return func() bool { return slices.Contains(log.kinds(), want) }
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	db, env, log := startWatcher(t, "bob")

	env.write(t, "bob/posts/1.json", `{"text":"hello @alice","mentions":[{"url":"dweb://alice"}]}`)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetPost(context.Background(), "dweb://bob/posts/1.json")
		return err == nil
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond,
		hasEvent(log, EventNotification+":dweb://bob/posts/1.json"), "notification event not emitted")
}

func TestWatcher_NewReplicaDirRegistered(t *testing.T) {
	db, env, _ := startWatcher(t)

	if err := os.Mkdir(filepath.Join(env.root, "carla"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	env.write(t, "carla/profile.json", `{"name":"Carla"}`)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		p, err := db.GetProfile(context.Background(), "dweb://carla")
		return err == nil && p.Name == "Carla"
	}, "profile in new replica not indexed")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	db, env, log := startWatcher(t, "bob")
	ctx := context.Background()

	env.write(t, "bob/posts/1.json", `{"text":"bye"}`)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetPost(ctx, "dweb://bob/posts/1.json")
		return err == nil
	}, "file not indexed")

	if err := os.Remove(filepath.Join(env.root, "bob", "posts", "1.json")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetPost(ctx, "dweb://bob/posts/1.json")
		return errors.Is(err, apperr.ErrNotFound)
	}, "deleted file still in index")
	eventually(t, 2*time.Second, 50*time.Millisecond,
		hasEvent(log, EventDeleted+":dweb://bob/posts/1.json"), "delete event not emitted")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	db, env, _ := startWatcher(t, "bob")
	ctx := context.Background()

	env.write(t, "bob/posts/old.json", `{"text":"moving"}`)
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetPost(ctx, "dweb://bob/posts/old.json")
		return err == nil
	}, "file not indexed")

	oldPath := filepath.Join(env.root, "bob", "posts", "old.json")
	newPath := filepath.Join(env.root, "bob", "posts", "new.json")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, oldErr := db.GetPost(ctx, "dweb://bob/posts/old.json")
		_, newErr := db.GetPost(ctx, "dweb://bob/posts/new.json")
		return errors.Is(oldErr, apperr.ErrNotFound) && newErr == nil
	}, "rename not reconciled")
}
