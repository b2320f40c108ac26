package core

import (
	"context"
	"strconv"
	"testing"
)

func benchmarkAnnounce(b *testing.B, clients int) {
	hub := NewHub(newMemStorage())
	ctx := context.Background()

	conns := make([]*Client, 0, clients)
	for i := 0; i < clients; i++ {
		c := NewClient("u"+strconv.Itoa(i), 1, 4)
		hub.registry.Register(c)
		conns = append(conns, c)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		hub.broadcaster.Announce(ctx)
		// Drain so no client is dropped as a slow consumer.
		for _, c := range conns {
			<-c.Events
		}
	}
}

func BenchmarkAnnounce_10(b *testing.B)  { benchmarkAnnounce(b, 10) }
func BenchmarkAnnounce_100(b *testing.B) { benchmarkAnnounce(b, 100) }
func BenchmarkAnnounce_500(b *testing.B) { benchmarkAnnounce(b, 500) }

func BenchmarkDeliverLive(b *testing.B) {
	hub := NewHub(newMemStorage())
	ctx := context.Background()

	recipient := NewClient("r", 1, 1024)
	hub.registry.Register(recipient)
	go func() {
		for range recipient.Events {
		}
	}()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, _, err := hub.SendMessage(ctx, "s", "r", "payload", ""); err != nil {
			b.Fatal(err)
		}
	}
}
