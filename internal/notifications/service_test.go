package notifications_test

import (
	"context"
	"testing"

	"github.com/starford/agora/internal/feed"
	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/notifications"
	"github.com/starford/agora/internal/social"
	"github.com/starford/agora/internal/testutil"
)

const (
	alice = "dweb://alice"
	bob   = "dweb://bob"
	carla = "dweb://carla"
)

type scenario struct {
	svc     *notifications.Service
	rootURL string
	mention string
	replyB  string
	replyC  string
}

// setup builds the reference scenario for alice: bob mentions her, bob
// replies to her post, carla replies to bob's reply, then bob and carla vote
// on her post.
func setup(t *testing.T) *scenario {
	t.Helper()
	env := testutil.TestEnv(t, alice, "alice", "bob", "carla")
	ctx := context.Background()
	people := social.NewService(env.Store)
	posts := feed.NewService(env.Store)

	for _, o := range []string{alice, bob} {
		name := o
		if err := people.SetProfile(ctx, o, social.ProfileFields{Name: &name}); err != nil {
			t.Fatal(err)
		}
	}

	post := func(origin string, in feed.PostInput) string {
		t.Helper()
		url, err := posts.Post(ctx, origin, in)
		if err != nil {
			t.Fatal(err)
		}
		return url
	}
	vote := func(origin, subject string) {
		t.Helper()
		if err := posts.Vote(ctx, origin, feed.VoteInput{Subject: subject, Vote: 1}); err != nil {
			t.Fatal(err)
		}
	}

	sc := &scenario{svc: notifications.NewService(env.DB)}
	sc.rootURL = post(alice, feed.PostInput{Text: "First"})
	sc.mention = post(bob, feed.PostInput{Text: "@Alice", Mentions: []models.Mention{{Name: "Alice", URL: alice}}})
	sc.replyB = post(bob, feed.PostInput{Text: "First reply", ThreadParent: sc.rootURL, ThreadRoot: sc.rootURL})
	sc.replyC = post(carla, feed.PostInput{Text: "Second reply", ThreadParent: sc.replyB, ThreadRoot: sc.rootURL})
	vote(bob, sc.rootURL)
	vote(carla, sc.rootURL)
	return sc
}

type summary struct {
	Type     models.NotificationType
	Origin   string
	Subject  string
	HasAuth  bool
	PostText string
	PostBy   string
}

func summarize(ns []*models.Notification) []summary {
	out := make([]summary, len(ns))
	for i, n := range ns {
		s := summary{Type: n.Type, Origin: n.Origin, Subject: n.Subject, HasAuth: n.Author != nil}
		if n.Post != nil {
			s.PostText = n.Post.Text
			if n.Post.Author != nil {
				s.PostBy = n.Post.Author.Origin
			}
		}
		out[i] = s
	}
	return out
}

func TestListNotificationsEndToEnd(t *testing.T) {
	sc := setup(t)
	ctx := context.Background()

	got, err := sc.svc.ListNotifications(ctx, notifications.ListOptions{FetchAuthor: true, FetchPost: true})
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	want := []summary{
		{models.NotificationMention, bob, alice, true, "@Alice", bob},
		{models.NotificationReply, bob, sc.rootURL, true, "First reply", bob},
		{models.NotificationReply, carla, sc.replyB, false, "Second reply", ""},
		{models.NotificationVote, bob, sc.rootURL, true, "First", alice},
		{models.NotificationVote, carla, sc.rootURL, false, "First", alice},
	}
	gotSum := summarize(got)
	if len(gotSum) != len(want) {
		t.Fatalf("got %d notifications: %+v", len(gotSum), gotSum)
	}
	for i := range want {
		if gotSum[i] != want[i] {
			t.Errorf("notification %d = %+v, want %+v", i, gotSum[i], want[i])
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Errorf("notification %d out of creation order", i)
		}
	}
	if got[0].Author.Origin != bob || got[1].Author != got[0].Author {
		t.Errorf("repeated origin should share one resolved profile")
	}
	if got[1].Post.Author != got[1].Author {
		t.Errorf("post author and notification author should share one resolved profile")
	}

	if n, err := sc.svc.CountNotifications(ctx, notifications.ListOptions{}); err != nil || n != 5 {
		t.Errorf("CountNotifications = %d, %v", n, err)
	}
}

func TestListNotificationsReversePaging(t *testing.T) {
	sc := setup(t)
	ctx := context.Background()

	got, err := sc.svc.ListNotifications(ctx, notifications.ListOptions{Reverse: true, Offset: 1, Limit: 2, FetchPost: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d notifications", len(got))
	}
	if got[0].Type != models.NotificationVote || got[0].Origin != bob {
		t.Errorf("first = %s by %s, want vote by bob", got[0].Type, got[0].Origin)
	}
	if got[1].Type != models.NotificationReply || got[1].Origin != carla {
		t.Errorf("second = %s by %s, want reply by carla", got[1].Type, got[1].Origin)
	}
	if got[0].Author != nil {
		t.Error("author fetched without FetchAuthor")
	}
	if got[0].Post == nil || got[0].Post.Author == nil || got[0].Post.Author.Origin != alice {
		t.Errorf("voted post should carry its author alice: %+v", got[0].Post)
	}

	if n, _ := sc.svc.CountNotifications(ctx, notifications.ListOptions{Offset: 1, Limit: 2}); n != 2 {
		t.Errorf("paged count = %d, want 2", n)
	}
}

func TestListNotificationsTimeRange(t *testing.T) {
	sc := setup(t)
	ctx := context.Background()

	all, _ := sc.svc.ListNotifications(ctx, notifications.ListOptions{})
	got, err := sc.svc.ListNotifications(ctx, notifications.ListOptions{After: all[1].CreatedAt, Before: all[3].CreatedAt})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].URL != sc.replyB || got[1].URL != sc.replyC {
		t.Errorf("range = %+v", summarize(got))
	}
}

func TestListNotificationsEmpty(t *testing.T) {
	env := testutil.TestEnv(t, alice, "alice")
	svc := notifications.NewService(env.DB)
	got, err := svc.ListNotifications(context.Background(), notifications.ListOptions{FetchAuthor: true, FetchPost: true})
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}
