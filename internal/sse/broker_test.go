package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gpabois/emerald/internal/index"
)

// drain collects the frames received within a short window.
func drain(ch chan []byte) []string {
	var out []string
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, string(msg))
		case <-timeout:
			return out
		}
	}
}

func count(frames []string, event string) int {
	n := 0
	for _, f := range frames {
		if strings.Contains(f, "event: "+event+"\n") {
			n++
		}
	}
	return n
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("ClientCount() = %d, want 0", n)
	}
	ch := b.Subscribe("", 0)
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("ClientCount() = %d, want 1", n)
	}
	b.Unsubscribe(ch)
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("ClientCount() after unsubscribe = %d, want 0", n)
	}
}

func TestPublishChange_MapsKinds(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe("", 0)
	defer b.Unsubscribe(ch)

	b.PublishChange(index.Change{Kind: index.Created, Path: "/a.md"})
	b.PublishChange(index.Change{Kind: index.Updated, Path: "/a.md"})
	b.PublishChange(index.Change{Kind: index.Relinked, Path: "/l"})
	b.PublishChange(index.Change{Kind: "renamed", Path: "/a.md"})
	b.PublishChange(index.Change{Kind: index.Deleted, Path: "/a.md"})

	frames := drain(ch)
	for event, want := range map[string]int{
		ShardCreated: 1, ShardUpdated: 1, ShardDeleted: 1, LinkChanged: 1, IndexUpdated: 1,
	} {
		if got := count(frames, event); got != want {
			t.Errorf("%s frames = %d, want %d", event, got, want)
		}
	}
	if !strings.Contains(frames[0], `"path":"/a.md"`) {
		t.Errorf("first frame = %q, want path payload", frames[0])
	}
}

func TestIndexUpdatedThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("", 0)
	defer b.Unsubscribe(ch)

	b.PublishChange(index.Change{Kind: index.Created, Path: "/a.md"})
	b.PublishChange(index.Change{Kind: index.Updated, Path: "/b.md"})

	frames := drain(ch)
	if got := count(frames, IndexUpdated); got != 1 {
		t.Errorf("index.updated frames = %d, want 1", got)
	}
	if got := len(frames); got != 3 {
		t.Errorf("frames = %d, want 3", got)
	}
}

func TestPrefixSubscription(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	projects := b.Subscribe("projects/", 0)
	defer b.Unsubscribe(projects)

	b.PublishChange(index.Change{Kind: index.Created, Path: "/projects/x.md"})
	b.PublishChange(index.Change{Kind: index.Created, Path: "/projectsold/y.md"})
	b.PublishChange(index.Change{Kind: index.Created, Path: "/journal/z.md"})

	frames := drain(projects)
	if got := count(frames, ShardCreated); got != 1 {
		t.Fatalf("shard.created frames = %d, want 1: %q", got, frames)
	}
	if !strings.Contains(frames[0], "/projects/x.md") {
		t.Errorf("frame = %q, want /projects/x.md", frames[0])
	}
	// index.updated carries no path and reaches every subscriber.
	if got := count(frames, IndexUpdated); got != 1 {
		t.Errorf("index.updated frames = %d, want 1", got)
	}
}

func TestReplayAfterLastEventID(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	// ids: 1 for /a.md, 2 for the index.updated it triggers, 3 for /b.md.
	b.Publish(Event{Type: ShardDeleted, Path: "/a.md", Data: map[string]string{"path": "/a.md"}})
	b.Publish(Event{Type: ShardDeleted, Path: "/b.md", Data: map[string]string{"path": "/b.md"}})
	time.Sleep(50 * time.Millisecond)

	ch := b.Subscribe("", 2)
	defer b.Unsubscribe(ch)
	frames := drain(ch)
	if len(frames) != 1 || !strings.HasPrefix(frames[0], "id: 3\n") {
		t.Errorf("replayed = %q, want only id 3", frames)
	}
}

func TestReplayDeliversWholeHistory(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	for range historySize {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	time.Sleep(100 * time.Millisecond)

	ch := b.Subscribe("", 1)
	defer b.Unsubscribe(ch)
	if got := count(drain(ch), "test"); got != historySize-1 {
		t.Errorf("replayed %d frames, want %d", got, historySize-1)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?prefix=/notes", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("ClientCount() = %d, want 1", n)
	}

	b.PublishChange(index.Change{Kind: index.Updated, Path: "/notes/x.md"})
	b.PublishChange(index.Change{Kind: index.Updated, Path: "/other/y.md"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "/notes/x.md") || strings.Contains(body, "/other/y.md") {
		t.Errorf("body = %q, want only /notes events", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount(); n != 0 {
		t.Errorf("ClientCount() after disconnect = %d, want 0", n)
	}
}

func TestSSEHandler_BadLastEventID(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Last-Event-ID", "abc")
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("", 0)
	defer b.Unsubscribe(ch)

	for range clientBuffer + 10 {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	if n := b.ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("", 0)
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
		t.Fatalf("ClientCount() after close = %d, want 0", n)
	}

	// No-ops once closed.
	b.PublishChange(index.Change{Kind: index.Updated, Path: "/x.md"})
	if ch := b.Subscribe("", 0); ch == nil {
		t.Fatal("Subscribe after close returned nil")
	}
}
