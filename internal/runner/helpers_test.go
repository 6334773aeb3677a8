package runner_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/torosent/sseflood/internal/runner"
	"github.com/torosent/sseflood/internal/testserver"
)

func newTarget(t *testing.T, opts ...testserver.Option) (*testserver.Service, *httptest.Server) {
	t.Helper()
	svc := testserver.New(opts...)
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	return svc, srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	policy := runner.PollPolicy{Attempts: 200, Interval: 10 * time.Millisecond}
	if err := runner.Poll(context.Background(), policy, cond); err != nil {
		t.Fatalf("timed out waiting for %s: %v", what, err)
	}
}

func publish(t *testing.T, baseURL, channel, data string) {
	t.Helper()
	body := fmt.Sprintf(`{"channel_id":%q,"event_type":"test","data":%s}`, channel, data)
	resp, err := http.Post(baseURL+"/api/send", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish returned %d", resp.StatusCode)
	}
}

// testLogger collects failures reported through runner.FailureLogger.
type testLogger struct {
	mu   sync.Mutex
	errs []error
}

func (l *testLogger) LogFailure(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *testLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}
