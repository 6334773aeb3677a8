package testserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/torosent/sseflood/internal/sse"
	"github.com/torosent/sseflood/internal/testserver"
)

func connect(t *testing.T, url, channel string) *sse.Client {
	t.Helper()
	client := sse.NewClient(sse.Config{URL: url + "/sse/connect?channel_id=" + channel})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitSubscribers(t *testing.T, svc *testserver.Service, channel string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for svc.Subscribers(channel) != n {
		if time.Now().After(deadline) {
			t.Fatalf("channel %s has %d subscribers, want %d", channel, svc.Subscribers(channel), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServiceFansOutToChannel(t *testing.T) {
	svc := testserver.New()
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	a := connect(t, srv.URL, "room")
	b := connect(t, srv.URL, "room")
	other := connect(t, srv.URL, "elsewhere")
	waitSubscribers(t, svc, "room", 2)

	resp, err := http.Post(srv.URL+"/api/send", "application/json",
		strings.NewReader(`{"channel_id":"room","event_type":"note","data":{ "n" : 1 }}`))
	if err != nil {
		t.Fatalf("send error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d", resp.StatusCode)
	}

	for _, c := range []*sse.Client{a, b} {
		var got sse.Event
		err := c.Stream(context.Background(), func(_ []byte, events []sse.Event) bool {
			for _, ev := range events {
				if ev.HasData {
					got = ev
					return false
				}
			}
			return true
		})
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		if got.Event != "note" || got.Data != `{"n":1}` {
			t.Fatalf("unexpected event %+v", got)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = other.Stream(ctx, func(_ []byte, events []sse.Event) bool {
		for _, ev := range events {
			if ev.HasData {
				t.Errorf("other channel received %+v", ev)
			}
		}
		return true
	})

	if svc.Sent() != 1 {
		t.Errorf("Sent() = %d, want 1", svc.Sent())
	}
}

func TestServiceRoutes(t *testing.T) {
	tests := []struct {
		name   string
		opts   []testserver.Option
		method string
		path   string
		body   string
		want   int
	}{
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "unhealthy", opts: []testserver.Option{testserver.WithUnhealthy()}, method: http.MethodGet, path: "/health", want: http.StatusServiceUnavailable},
		{name: "stats", method: http.MethodGet, path: "/api/stats", want: http.StatusOK},
		{name: "connect without channel", method: http.MethodGet, path: "/sse/connect", want: http.StatusBadRequest},
		{name: "rejected connect", opts: []testserver.Option{testserver.WithConnectStatus(http.StatusTooManyRequests)}, method: http.MethodGet, path: "/sse/connect?channel_id=x", want: http.StatusTooManyRequests},
		{name: "send bad json", method: http.MethodPost, path: "/api/send", body: "{", want: http.StatusBadRequest},
		{name: "send without channel", method: http.MethodPost, path: "/api/send", body: `{"data":1}`, want: http.StatusBadRequest},
		{name: "send to nobody", method: http.MethodPost, path: "/api/send", body: `{"channel_id":"empty","data":1}`, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(testserver.New(tt.opts...))
			defer srv.Close()

			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := srv.Client().Do(req)
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServiceCloseAfterEndsStream(t *testing.T) {
	svc := testserver.New(testserver.WithCloseAfter(30 * time.Millisecond))
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	c := connect(t, srv.URL, "short")
	err := c.Stream(context.Background(), func([]byte, []sse.Event) bool { return true })
	if err == nil {
		t.Fatal("expected the stream to end with EOF")
	}
	if svc.AcceptedConnections() != 1 {
		t.Errorf("AcceptedConnections() = %d, want 1", svc.AcceptedConnections())
	}
}

func TestServiceCloseReleasesOpenStreams(t *testing.T) {
	svc := testserver.New()
	srv := httptest.NewServer(svc)

	client := sse.NewClient(sse.Config{URL: srv.URL + "/sse/connect?channel_id=held"})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
	waitSubscribers(t, svc, "held", 1)

	closed := make(chan struct{})
	go func() {
		svc.Close()
		srv.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("server close blocked on an open stream")
	}
	if got := svc.ActiveConnections(); got != 0 {
		t.Errorf("ActiveConnections() = %d after Close, want 0", got)
	}
}
