// Package testutil provides shared test helpers for setting up replicas and
// the record index.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/agora/internal/index"
	"github.com/starford/agora/internal/recordstore"
	"github.com/starford/agora/internal/replica"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "agora-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRegistry creates a replica root in a temp dir with one replica per name.
func TestRegistry(t *testing.T, names ...string) *replica.Registry {
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

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Clock is a manually advanced time source. Every call to Now moves it
// forward by Step so consecutive records get distinct, ordered timestamps.
type Clock struct {
	mu   sync.Mutex
	t    time.Time
	Step time.Duration
}

// NewClock starts a clock at start that advances one second per reading.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start, Step: time.Second}
}

// Now returns the current reading and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.Step)
	return now
}

// Env bundles a fully wired record store over temporary replicas.
type Env struct {
	DB       *index.DB
	Registry *replica.Registry
	Indexer  *index.Indexer
	Store    *recordstore.Store
	Clock    *Clock
}

// TestEnv wires a record store whose local user is userOrigin over one
// replica per name. Record timestamps come from a deterministic Clock.
func TestEnv(t *testing.T, userOrigin string, names ...string) *Env {
	t.Helper()
	db := TestDB(t)
	reg := TestRegistry(t, names...)
	ix := index.NewIndexer(db, userOrigin, Logger())
	clock := NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return &Env{
		DB:       db,
		Registry: reg,
		Indexer:  ix,
		Store:    recordstore.New(reg, ix, recordstore.WithClock(clock.Now)),
		Clock:    clock,
	}
}
