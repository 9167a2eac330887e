package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"factory-digital-twin/shared/broadcast"
	"factory-digital-twin/shared/events"
	"factory-digital-twin/shared/logx"
)

func TestStreamDeliversFramedEvents(t *testing.T) {
	hub := broadcast.NewHub(8)
	logger := logx.New("sse-test", "test", "", "error")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Stream(w, r, hub, logger, events.ChannelIncidents)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := resp.Header.Get("X-Accel-Buffering"); got != "no" {
		t.Fatalf("X-Accel-Buffering = %q", got)
	}

	// The handler subscribes before writing headers, so the stream is live
	// once the response arrives.
	if err := hub.Publish(context.Background(), events.ChannelIncidents, events.Message{
		Event: events.IncidentCreated,
		Data:  map[string]any{"severity": 4},
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	reader := bufio.NewReader(resp.Body)
	lineCh := make(chan string, 1)
	go func() {
		line, err := reader.ReadString('\n')
		if err == nil {
			lineCh <- line
		}
	}()

	select {
	case line := <-lineCh:
		if !strings.HasPrefix(line, "data: ") {
			t.Fatalf("frame = %q, want data: prefix", line)
		}
		if !strings.Contains(line, events.IncidentCreated) {
			t.Fatalf("frame %q missing event name", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame received")
	}

	blank, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read frame terminator: %v", err)
	}
	if blank != "\n" {
		t.Fatalf("frame terminator = %q, want blank line", blank)
	}
}

func TestStreamReleasesSubscriptionOnDisconnect(t *testing.T) {
	hub := broadcast.NewHub(8)
	logger := logx.New("sse-test", "test", "", "error")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Stream(w, r, hub, logger, events.ChannelFactories)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount(events.ChannelFactories) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()

	deadline = time.Now().Add(2 * time.Second)
	for hub.SubscriberCount(events.ChannelFactories) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
