package diagnostics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pgaskin/spicy-kvm/internal/diagnostics"
)

func TestPublishDeliversToConnectedClient(t *testing.T) {
	srv := diagnostics.New("", 1)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/latency"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine a moment to register the client before
	// publishing, since Upgrade happens asynchronously relative to Dial
	// returning.
	time.Sleep(20 * time.Millisecond)

	srv.Publish(diagnostics.Snapshot{
		CurrentOffsetMS: 1.5,
		DeviceLatencyMS: 8.0,
		TotalLatencyMS:  9.5,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got diagnostics.Snapshot
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.TotalLatencyMS != 9.5 {
		t.Errorf("expected total latency 9.5, got %v", got.TotalLatencyMS)
	}
}

func TestPublishRateLimits(t *testing.T) {
	srv := diagnostics.New("", 3)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/latency"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		srv.Publish(diagnostics.Snapshot{TotalLatencyMS: float64(i)})
	}
	srv.Publish(diagnostics.Snapshot{TotalLatencyMS: 42})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got diagnostics.Snapshot
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.TotalLatencyMS != 42 {
		t.Errorf("expected only the 3rd publish to arrive (42), got %v", got.TotalLatencyMS)
	}
}
