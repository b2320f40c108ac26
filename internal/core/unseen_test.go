package core

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func TestUnseenIncrementAndReset(t *testing.T) {
	u := NewUnseenCounter()

	for i := 0; i < 5; i++ {
		u.Increment("v", "p")
	}
	if got := u.Get("v", "p"); got != 5 {
		t.Fatalf("count = %d, want 5", got)
	}

	u.Reset("v", "p")
	if got := u.Get("v", "p"); got != 0 {
		t.Fatalf("count after reset = %d, want 0", got)
	}

	u.Increment("v", "p")
	u.Reset("v", "p")
	if got := u.Get("v", "p"); got != 0 {
		t.Fatalf("increment then reset = %d, want 0", got)
	}

	// Resetting an unknown pair is harmless.
	u.Reset("nobody", "p")
}

func TestUnseenSnapshotOmitsZeroAndCopies(t *testing.T) {
	u := NewUnseenCounter()
	u.Increment("v", "p")
	u.Increment("v", "q")
	u.Increment("v", "q")
	u.Reset("v", "p")

	snap := u.Snapshot("v")
	if len(snap) != 1 || snap["q"] != 2 {
		t.Fatalf("unexpected snapshot: %v", snap)
	}

	snap["q"] = 100
	if u.Get("v", "q") != 2 {
		t.Fatalf("snapshot must be a copy")
	}

	if got := u.Snapshot("stranger"); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %v", got)
	}
}

func TestUnseenSeedReplaces(t *testing.T) {
	u := NewUnseenCounter()
	u.Increment("v", "stale")

	if u.Seeded("v") {
		t.Fatalf("viewer must not be seeded yet")
	}
	u.Seed("v", map[string]int{"p": 3, "zero": 0})

	snap := u.Snapshot("v")
	if !u.Seeded("v") || len(snap) != 1 || snap["p"] != 3 {
		t.Fatalf("unexpected seeded snapshot: %v", snap)
	}
}

func TestUnseenSaturates(t *testing.T) {
	u := NewUnseenCounter()
	u.Seed("v", map[string]int{"p": math.MaxInt})
	u.Increment("v", "p")
	if got := u.Get("v", "p"); got != math.MaxInt {
		t.Fatalf("count = %d, want saturation at MaxInt", got)
	}
}

func TestUnseenConcurrentIncrements(t *testing.T) {
	u := NewUnseenCounter()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.Increment("v", "p")
		}()
	}
	wg.Wait()

	if got := u.Get("v", "p"); got != 100 {
		t.Fatalf("count = %d, want 100", got)
	}
}

func TestUnseenSeedWaitsForHeldDelivery(t *testing.T) {
	u := NewUnseenCounter()

	release := u.HoldDelivery("v")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = u.SeedFrom("v", func() (map[string]int, error) {
			return map[string]int{"p": 1}, nil
		})
	}()

	select {
	case <-done:
		t.Fatalf("seed must wait for the delivery in flight")
	case <-time.After(30 * time.Millisecond):
	}

	// The held delivery counts a message the later fetch also returns.
	u.Increment("v", "p")
	release()
	<-done

	if got := u.Get("v", "p"); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	if !u.Seeded("v") {
		t.Fatalf("viewer should be seeded")
	}
}

func TestUnseenDeliveryWaitsForSeed(t *testing.T) {
	u := NewUnseenCounter()

	counted := make(chan struct{})
	counts, err := u.SeedFrom("v", func() (map[string]int, error) {
		go func() {
			release := u.HoldDelivery("v")
			u.Increment("v", "p")
			release()
			close(counted)
		}()
		select {
		case <-counted:
			t.Errorf("delivery must wait for the seed")
		case <-time.After(30 * time.Millisecond):
		}
		return map[string]int{"p": 1}, nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if counts["p"] != 1 {
		t.Fatalf("seeded = %v, want p:1", counts)
	}

	<-counted
	if got := u.Get("v", "p"); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func TestUnseenSeedFromError(t *testing.T) {
	u := NewUnseenCounter()
	u.Increment("v", "p")

	boom := errors.New("db down")
	if _, err := u.SeedFrom("v", func() (map[string]int, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if u.Seeded("v") || u.Get("v", "p") != 1 {
		t.Fatalf("failed load must leave counts untouched")
	}

	// The gate is released after an error.
	release := u.HoldDelivery("v")
	release()
}
