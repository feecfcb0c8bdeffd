package game

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewHub(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if hub.broadcast == nil {
		t.Error("Hub broadcast channel is nil")
	}
	if hub.register == nil {
		t.Error("Hub register channel is nil")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("ClientCount() = %v, want 0", count)
	}
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	// hub not running, so the channel fills up
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.Broadcast(EventMultiplierUpdate, multiplierUpdateEvent{Multiplier: 1.5})
	}

	done := make(chan bool, 1)
	go func() {
		hub.Broadcast(EventMultiplierUpdate, multiplierUpdateEvent{Multiplier: 2.0})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast() blocked when channel was full")
	}
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	go hub.Run()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hub.Broadcast(EventMultiplierUpdate, multiplierUpdateEvent{Multiplier: float64(n)})
		}(i)
	}

	done := make(chan bool)
	go func() {
		wg.Wait()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("concurrent broadcasts timed out")
	}
}

func TestHub_ClientCount_ThreadSafe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	go hub.Run()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = hub.ClientCount()
		}()
	}

	done := make(chan bool)
	go func() {
		wg.Wait()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("concurrent ClientCount() timed out")
	}
}

func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub(zerolog.Nop())
	go hub.Run()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(EventMultiplierUpdate, multiplierUpdateEvent{Multiplier: 1.5})
	}
}
