package httpapi

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shahincodev/Sofware-AI-English/pkg/models"
)

func TestSSEHub_subscribePublishLeave(t *testing.T) {
	hub := NewSSEHub()
	ch, leave := hub.Subscribe()
	if hub.Subscribers() != 1 {
		t.Fatalf("Subscribers: got %d", hub.Subscribers())
	}
	hub.Publish(models.Event{Type: models.EventTaskStarted, TaskID: "abc"})
	f := <-ch
	if f.event != models.EventTaskStarted || !strings.Contains(string(f.data), `"abc"`) {
		t.Errorf("Publish: got %s %s", f.event, f.data)
	}
	leave()
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after leave")
	}
	leave()
	if hub.Subscribers() != 0 {
		t.Errorf("Subscribers after leave: got %d", hub.Subscribers())
	}
}

func TestSSEHub_slowClientMissesEvents(t *testing.T) {
	hub := NewSSEHub()
	ch, leave := hub.Subscribe()
	defer leave()
	for i := 0; i < models.DefaultSSEChannelBuffer+10; i++ {
		hub.Publish(models.Event{Type: models.EventAgentActivity, TaskID: fmt.Sprint(i)})
	}
	if len(ch) != models.DefaultSSEChannelBuffer {
		t.Errorf("queued: got %d", len(ch))
	}
}

func TestSSEHub_Handler(t *testing.T) {
	hub := NewSSEHub()
	handler := hub.Handler()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		handler(rec, req)
		close(done)
	}()
	// Read the body only after the handler returns.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	sc := bufio.NewScanner(rec.Body)
	var found bool
	for sc.Scan() {
		if sc.Text() == "event: connected" {
			found = true
			break
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !found {
		t.Error("expected a connected event")
	}
}
