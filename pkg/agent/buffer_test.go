package agent

import (
	"sync"
	"testing"

	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
)

func TestBufferSnapshotDoesNotClear(t *testing.T) {
	var buf Buffer
	buf.Add(providers.Message{Role: providers.RoleUser, Content: "a"})
	buf.Add(providers.Message{Role: providers.RoleUser, Content: "b"})

	snap := buf.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}
	if buf.Len() != 2 {
		t.Errorf("buffer drained by snapshot, len = %d", buf.Len())
	}

	buf.Add(providers.Message{Role: providers.RoleUser, Content: "c"})
	if len(snap) != 2 {
		t.Errorf("snapshot observed later growth, len = %d", len(snap))
	}
	if buf.Len() != 3 {
		t.Errorf("growth not visible via Len, got %d", buf.Len())
	}
}

func TestBufferTurnLockIsExclusive(t *testing.T) {
	var buf Buffer
	if !buf.TryAcquireTurn() {
		t.Fatal("first acquire failed")
	}
	if buf.TryAcquireTurn() {
		t.Fatal("second acquire succeeded while held")
	}
	buf.ReleaseTurn()
	if !buf.TryAcquireTurn() {
		t.Fatal("acquire after release failed")
	}
	buf.ReleaseTurn()
}

func TestBuffersLazyCreateAndEvict(t *testing.T) {
	registry := NewBuffers()

	buf := registry.Get("conv1")
	if registry.Size() != 1 {
		t.Fatalf("size = %d, want 1", registry.Size())
	}
	if got := registry.Get("conv1"); got != buf {
		t.Error("Get returned a different buffer for the same conversation")
	}

	buf.Add(providers.Message{Role: providers.RoleUser, Content: "x"})
	registry.Evict("conv1")
	if registry.Size() != 1 {
		t.Error("evicted a buffer with pending messages")
	}

	buf.Clear()
	registry.Evict("conv1")
	if registry.Size() != 0 {
		t.Error("drained unlocked buffer not evicted")
	}
}

func TestBuffersEvictSkipsLockedBuffer(t *testing.T) {
	registry := NewBuffers()
	buf := registry.Get("conv1")

	if !buf.TryAcquireTurn() {
		t.Fatal("acquire failed")
	}
	registry.Evict("conv1")
	if registry.Size() != 1 {
		t.Error("evicted a buffer whose turn lock is held")
	}
	buf.ReleaseTurn()
}

func TestBufferConcurrentAdds(t *testing.T) {
	var buf Buffer
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf.Add(providers.Message{Role: providers.RoleUser, Content: "m"})
		}()
	}
	wg.Wait()
	if buf.Len() != 50 {
		t.Errorf("len = %d, want 50", buf.Len())
	}
}
