package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/agora/internal/checksum"
	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/monitoring"
	"github.com/starford/agora/internal/records"
	"github.com/starford/agora/internal/replica"
	"github.com/starford/agora/internal/urlnorm"
)

// Event kinds reported to an EventCallback.
const (
	EventCreated      = "created"
	EventUpdated      = "updated"
	EventDeleted      = "deleted"
	EventNotification = "notification"
)

// Event describes one index change.
type Event struct {
	Kind         string               `json:"kind"`
	URL          string               `json:"url"`
	Record       records.Kind         `json:"record,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

// EventCallback is called after an index mutation.
type EventCallback func(Event)

// Indexer turns replica files into index rows and derives the local user's
// notifications from them.
type Indexer struct {
	db      RecordIndex
	user    string
	logger  *slog.Logger
	metrics *monitoring.Metrics
	onEvent EventCallback
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithMetrics records indexing counters and durations on m.
func WithMetrics(m *monitoring.Metrics) IndexerOption {
	return func(ix *Indexer) { ix.metrics = m }
}

// WithEventCallback registers cb to be called after every mutation.
func WithEventCallback(cb EventCallback) IndexerOption {
	return func(ix *Indexer) { ix.onEvent = cb }
}

// NewIndexer creates an indexer writing to db. userOrigin is the local user
// notifications are derived for; empty disables derivation.
func NewIndexer(db RecordIndex, userOrigin string, logger *slog.Logger, opts ...IndexerOption) *Indexer {
	ix := &Indexer{db: db, logger: logger}
	if userOrigin != "" {
		ix.user = urlnorm.CanonicalOrigin(userOrigin)
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// SetEventCallback replaces the event callback. It must be called before the
// indexer is shared between goroutines.
func (ix *Indexer) SetEventCallback(cb EventCallback) {
	ix.onEvent = cb
}

// DB returns the index the indexer writes to.
func (ix *Indexer) DB() RecordIndex {
	return ix.db
}

// Emit reports ev to the registered callback, if any.
func (ix *Indexer) Emit(ev Event) {
	if ix.onEvent != nil {
		ix.onEvent(ev)
	}
}

// IndexFile decodes data as the record at p inside origin and upserts it.
// modTime is used as the creation time of records that do not carry one.
// It returns the decoded record.
func (ix *Indexer) IndexFile(ctx context.Context, origin, p string, data []byte, modTime time.Time) (*records.Record, error) {
	kind := records.KindOf(p)
	start := time.Now()

	rec, err := ix.indexFile(ctx, origin, p, data, modTime)

	if ix.metrics != nil {
		label := string(kind)
		if err != nil {
			ix.metrics.RecordIndexErrors.WithLabelValues(label).Inc()
		} else {
			ix.metrics.RecordsIndexed.WithLabelValues(label).Inc()
			ix.metrics.RecordIndexDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		}
	}
	return rec, err
}

func (ix *Indexer) indexFile(ctx context.Context, origin, p string, data []byte, modTime time.Time) (*records.Record, error) {
	rec, err := records.Decode(origin, p, data, modTime)
	if err != nil {
		return nil, err
	}
	src := Source{Path: p, Checksum: checksum.Sum(data)}

	switch rec.Kind {
	case records.KindProfile:
		err = ix.db.PutProfile(ctx, rec.Profile, src)
	case records.KindPost:
		err = ix.db.PutPost(ctx, rec.Post, src)
	case records.KindVote:
		err = ix.db.PutVote(ctx, rec.Vote, src)
	}
	if err != nil {
		return nil, err
	}

	for _, n := range ix.derive(rec) {
		created, err := ix.db.PutNotification(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("index: derive %s notification: %w", n.Type, err)
		}
		if !created {
			continue
		}
		if ix.metrics != nil {
			ix.metrics.NotificationsDerived.WithLabelValues(string(n.Type)).Inc()
		}
		ix.Emit(Event{Kind: EventNotification, URL: n.URL, Notification: n})
	}
	return rec, nil
}

// derive returns the notifications rec produces for the local user. Records
// written by the user never notify the user.
func (ix *Indexer) derive(rec *records.Record) []*models.Notification {
	if ix.user == "" {
		return nil
	}
	under := func(u string) bool {
		return u != "" && urlnorm.CanonicalOrigin(u) == ix.user
	}

	var out []*models.Notification
	switch rec.Kind {
	case records.KindPost:
		p := rec.Post
		if p.Origin == ix.user {
			return nil
		}
		if p.MentionsOrigin(ix.user) {
			out = append(out, &models.Notification{
				Type:      models.NotificationMention,
				Origin:    p.Origin,
				URL:       p.URL,
				Subject:   ix.user,
				CreatedAt: p.CreatedAt,
			})
		}
		if under(p.ThreadParent) || under(p.ThreadRoot) {
			out = append(out, &models.Notification{
				Type:      models.NotificationReply,
				Origin:    p.Origin,
				URL:       p.URL,
				Subject:   p.ThreadParent,
				CreatedAt: p.CreatedAt,
			})
		}

	case records.KindVote:
		v := rec.Vote
		if v.Origin == ix.user || !under(v.Subject) {
			return nil
		}
		out = append(out, &models.Notification{
			Type:      models.NotificationVote,
			Origin:    v.Origin,
			URL:       v.URL,
			Subject:   v.Subject,
			CreatedAt: v.CreatedAt,
		})
	}
	return out
}

// Remove drops the record at url from the index.
func (ix *Indexer) Remove(ctx context.Context, url string) error {
	return ix.db.DeleteRecord(ctx, url)
}

// Sync walks every registered replica and brings the index up to date:
//   - new/changed files are decoded and upserted
//   - records whose files are gone are deleted from the index
//
// Files that fail to decode are logged and skipped.
func Sync(ctx context.Context, ix *Indexer, reg *replica.Registry, logger *slog.Logger) error {
	checksums, err := ix.db.Checksums(ctx)
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(checksums))
	for _, origin := range reg.Origins() {
		store, err := reg.Lookup(origin)
		if err != nil {
			return err
		}
		metas, err := store.List("")
		if err != nil {
			return err
		}

		for _, m := range metas {
			if records.KindOf(m.Path) == records.KindUnknown {
				continue
			}
			url := urlnorm.Join(origin, m.Path)
			disk[url] = struct{}{}

			if checksums[url] == m.Checksum {
				continue
			}

			data, err := store.Read(m.Path)
			if err != nil {
				logger.Warn("sync: read failed", slog.String("url", url), slog.String("error", err.Error()))
				continue
			}
			if _, err := ix.IndexFile(ctx, origin, m.Path, data, m.UpdatedAt); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logger.Warn("sync: index failed", slog.String("url", url), slog.String("error", err.Error()))
				continue
			}
			logger.Debug("sync: indexed", slog.String("url", url))
		}
	}

	// Remove stale entries.
	for url := range checksums {
		if _, ok := disk[url]; ok {
			continue
		}
		if err := ix.Remove(ctx, url); err != nil {
			logger.Warn("sync: delete failed", slog.String("url", url), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("url", url))
		}
	}

	return nil
}
