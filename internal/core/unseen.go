package core

import (
	"math"
	"sync"
)

// UnseenCounter tracks, per viewer and peer, messages the viewer has not seen.
// Reset is the only way a count goes down.
//
// Seeding and delivery are ordered per viewer: SeedFrom holds the viewer's
// gate exclusively across the storage fetch and the seed, while each delivery
// holds it shared from persisting a message until it is counted. A fetch
// therefore never includes a message that is counted afterwards, and a count
// is never overwritten by a fetch that missed it.
type UnseenCounter struct {
	mu     sync.Mutex
	counts map[string]map[string]int
	seeded map[string]struct{}
	gates  map[string]*viewerGate
}

type viewerGate struct {
	mu   sync.RWMutex
	refs int
}

// NewUnseenCounter creates an empty counter.
func NewUnseenCounter() *UnseenCounter {
	return &UnseenCounter{
		counts: make(map[string]map[string]int),
		seeded: make(map[string]struct{}),
		gates:  make(map[string]*viewerGate),
	}
}

func (u *UnseenCounter) enter(viewer string, exclusive bool) func() {
	u.mu.Lock()
	g, ok := u.gates[viewer]
	if !ok {
		g = &viewerGate{}
		u.gates[viewer] = g
	}
	g.refs++
	u.mu.Unlock()

	if exclusive {
		g.mu.Lock()
	} else {
		g.mu.RLock()
	}
	return func() {
		if exclusive {
			g.mu.Unlock()
		} else {
			g.mu.RUnlock()
		}
		u.mu.Lock()
		g.refs--
		if g.refs == 0 {
			delete(u.gates, viewer)
		}
		u.mu.Unlock()
	}
}

// HoldDelivery marks a delivery to viewer as in flight until release is
// called. SeedFrom for viewer waits for every held delivery.
func (u *UnseenCounter) HoldDelivery(viewer string) (release func()) {
	return u.enter(viewer, false)
}

// SeedFrom loads viewer's counts and seeds them while no delivery to viewer
// is in flight, returning the seeded snapshot.
func (u *UnseenCounter) SeedFrom(viewer string, load func() (map[string]int, error)) (map[string]int, error) {
	release := u.enter(viewer, true)
	defer release()

	counts, err := load()
	if err != nil {
		return nil, err
	}
	u.Seed(viewer, counts)
	return u.Snapshot(viewer), nil
}

// Increment adds one unseen message from peer to viewer.
func (u *UnseenCounter) Increment(viewer, peer string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	peers, ok := u.counts[viewer]
	if !ok {
		peers = make(map[string]int)
		u.counts[viewer] = peers
	}
	if peers[peer] < math.MaxInt {
		peers[peer]++
	}
}

// Reset zeroes the count of viewer for peer.
func (u *UnseenCounter) Reset(viewer, peer string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	peers, ok := u.counts[viewer]
	if !ok {
		return
	}
	delete(peers, peer)
	if len(peers) == 0 {
		delete(u.counts, viewer)
	}
}

// Get returns the count of viewer for peer.
func (u *UnseenCounter) Get(viewer, peer string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[viewer][peer]
}

// Snapshot returns a copy of the non-zero counts of viewer.
func (u *UnseenCounter) Snapshot(viewer string) map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[string]int, len(u.counts[viewer]))
	for peer, n := range u.counts[viewer] {
		if n > 0 {
			out[peer] = n
		}
	}
	return out
}

// Seed replaces the counts of viewer with counts loaded from durable storage.
func (u *UnseenCounter) Seed(viewer string, counts map[string]int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	peers := make(map[string]int, len(counts))
	for peer, n := range counts {
		if n > 0 {
			peers[peer] = n
		}
	}
	if len(peers) == 0 {
		delete(u.counts, viewer)
	} else {
		u.counts[viewer] = peers
	}
	u.seeded[viewer] = struct{}{}
}

// Seeded reports whether viewer has been reconciled with storage.
func (u *UnseenCounter) Seeded(viewer string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.seeded[viewer]
	return ok
}
