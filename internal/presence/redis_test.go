package presence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestPayload_EmptySetEncodesAsArray(t *testing.T) {
	m := newMirror(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), Config{Key: "k"})
	t.Cleanup(func() { _ = m.Close() })
	m.now = func() time.Time { return time.UnixMilli(1234) }

	data, err := m.payload(nil)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if string(data) != `{"users":[],"at":1234}` {
		t.Fatalf("unexpected payload %s", data)
	}

	data, err = m.payload([]string{"A", "B"})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Users) != 2 || snap.Users[0] != "A" || snap.Users[1] != "B" {
		t.Fatalf("unexpected users %v", snap.Users)
	}
}

func TestNewRedisMirror_FailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Port 1 is reserved and nothing listens there.
	if _, err := NewRedisMirror(ctx, Config{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatalf("expected ping failure")
	}
}
