package index

import (
	"context"

	"github.com/starford/agora/internal/models"
)

// RecordIndex defines the record-store operations the services consume.
// Consumers should depend on this interface rather than the concrete *DB type.
type RecordIndex interface {
	PutProfile(ctx context.Context, p *models.Profile, src Source) error
	PutPost(ctx context.Context, p *models.Post, src Source) error
	PutVote(ctx context.Context, v *models.Vote, src Source) error
	PutNotification(ctx context.Context, n *models.Notification) (bool, error)
	DeleteRecord(ctx context.Context, url string) error
	Checksum(ctx context.Context, url string) (string, error)
	Checksums(ctx context.Context) (map[string]string, error)

	GetProfile(ctx context.Context, origin string) (*models.Profile, error)
	ListFollowers(ctx context.Context, target string) ([]*models.Profile, error)
	CountFollowers(ctx context.Context, target string) (int, error)

	GetPost(ctx context.Context, url string) (*models.Post, error)
	ListPosts(ctx context.Context, q PostQuery) ([]*models.Post, error)
	CountPosts(ctx context.Context, q PostQuery) (int, error)
	ListReplies(ctx context.Context, parentURL string) ([]*models.Post, error)
	CountReplies(ctx context.Context, parentURL string) (int, error)

	ListVotesFor(ctx context.Context, subject string) ([]models.Vote, error)

	ListNotifications(ctx context.Context, r Range) ([]*models.Notification, error)
	CountNotifications(ctx context.Context, r Range) (int, error)

	Close() error
}

// Verify *DB satisfies RecordIndex at compile time.
var _ RecordIndex = (*DB)(nil)
