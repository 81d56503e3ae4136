package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/agora/internal/index"
	"github.com/starford/agora/internal/models"
	"github.com/starford/agora/internal/records"
)

// field returns the value of an SSE field such as "event" or "id".
func field(msg []byte, name string) string {
	for _, line := range strings.Split(string(msg), "\n") {
		if v, ok := strings.CutPrefix(line, name+": "); ok {
			return v
		}
	}
	return ""
}

func receive(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

// drain collects the event types already queued on ch.
func drain(ch chan []byte) []string {
	var types []string
	for {
		select {
		case msg := <-ch:
			types = append(types, field(msg, "event"))
		case <-time.After(100 * time.Millisecond):
			return types
		}
	}
}

func TestClientCount(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	a := b.Subscribe()
	c := b.Subscribe(TopicPost)
	if n := b.ClientCount(); n != 2 {
		t.Fatalf("ClientCount = %d, want 2", n)
	}
	b.Unsubscribe(a)
	b.Unsubscribe(c)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("ClientCount = %d after unsubscribe, want 0", n)
	}
}

func TestEventIDsIncrease(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "post.created", Data: map[string]string{"url": "dweb://a/posts/1.json"}})
	b.Publish(Event{Type: "post.deleted", Data: map[string]string{"url": "dweb://a/posts/1.json"}})

	first, second := receive(t, ch), receive(t, ch)
	if field(first, "id") != "1" || field(second, "id") != "2" {
		t.Errorf("ids = %q, %q", field(first, "id"), field(second, "id"))
	}
	if field(first, "data") != `{"url":"dweb://a/posts/1.json"}` {
		t.Errorf("data = %q", field(first, "data"))
	}
	if !strings.HasSuffix(string(first), "\n\n") {
		t.Errorf("message not terminated: %q", first)
	}
}

func TestTopicFilter(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	notes := b.Subscribe(TopicNotification)
	defer b.Unsubscribe(notes)
	all := b.Subscribe()
	defer b.Unsubscribe(all)

	b.PublishIndexEvent(index.Event{Kind: index.EventCreated, URL: "dweb://bob/posts/1.json", Record: records.KindPost})
	n := &models.Notification{Type: models.NotificationMention, Origin: "dweb://bob", URL: "dweb://bob/posts/1.json", Subject: "dweb://alice"}
	b.PublishIndexEvent(index.Event{Kind: index.EventNotification, URL: n.URL, Notification: n})

	got := drain(notes)
	if strings.Join(got, ",") != "notification.created" {
		t.Errorf("filtered client got %v", got)
	}
	got = drain(all)
	want := "post.created,feed.updated,notification.created"
	if strings.Join(got, ",") != want {
		t.Errorf("unfiltered client got %v, want %s", got, want)
	}
}

func TestFeedUpdatedIsThrottled(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishIndexEvent(index.Event{Kind: index.EventCreated, URL: "dweb://a/posts/1.json", Record: records.KindPost})
	b.PublishIndexEvent(index.Event{Kind: index.EventUpdated, URL: "dweb://a/votes/1.json", Record: records.KindVote})
	b.PublishIndexEvent(index.Event{Kind: index.EventUpdated, URL: "dweb://a/profile.json", Record: records.KindProfile})
	b.PublishIndexEvent(index.Event{Kind: index.EventDeleted, URL: "dweb://a/notes.txt"})

	want := []string{"post.created", "feed.updated", "vote.updated", "profile.updated"}
	if got := drain(ch); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestNotificationCarriesEntry(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	n := &models.Notification{Type: models.NotificationMention, Origin: "dweb://bob", URL: "dweb://bob/posts/1.json", Subject: "dweb://alice"}
	b.PublishIndexEvent(index.Event{Kind: index.EventNotification, URL: n.URL, Notification: n})

	msg := receive(t, ch)
	if field(msg, "event") != "notification.created" || !strings.Contains(field(msg, "data"), `"type":"mention"`) {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestServeHTTP(t *testing.T) {
	b := NewBroker(time.Second, WithKeepAlive(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events?topics=profile", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Publish(Event{Type: "post.created", Data: map[string]string{"url": "dweb://x/posts/1.json"}})
	b.Publish(Event{Type: "profile.updated", Data: map[string]string{"url": "dweb://x/profile.json"}})
	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: profile.updated") {
		t.Errorf("missing profile event: %q", body)
	}
	if strings.Contains(body, "post.created") {
		t.Errorf("post event leaked through topic filter: %q", body)
	}
	if !strings.Contains(body, ": keepalive") {
		t.Errorf("no keepalive written: %q", body)
	}

	deadline = time.Now().Add(time.Second)
	for b.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	slow := b.Subscribe()
	defer b.Unsubscribe(slow)

	for i := 0; i < clientBuffer+10; i++ {
		b.Publish(Event{Type: "post.created", Data: map[string]int{"i": i}})
	}

	fast := b.Subscribe()
	defer b.Unsubscribe(fast)
	b.Publish(Event{Type: "vote.created", Data: map[string]string{}})
	if got := field(receive(t, fast), "event"); got != "vote.created" {
		t.Errorf("fast client got %q", got)
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(time.Second)
	ch := b.Subscribe()
	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("subscriber channel still open")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("ClientCount = %d after close", n)
	}

	// No-ops once closed.
	b.Close()
	b.Publish(Event{Type: "profile.updated"})
	b.PublishIndexEvent(index.Event{Kind: index.EventDeleted, URL: "dweb://x/profile.json", Record: records.KindProfile})
	if _, ok := <-b.Subscribe(); ok {
		t.Error("Subscribe after close returned an open channel")
	}
}
