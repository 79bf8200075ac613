package agent

import (
	"sync"

	"github.com/Tanzania-AI-Community/twiga/pkg/providers"
)

// Buffer is the transient inbox for one conversation. Inbound messages
// accumulate in pending while a turn may already be running; the turn
// lock guarantees at most one agent turn per conversation at a time.
type Buffer struct {
	mu      sync.Mutex
	pending []providers.Message

	turn sync.Mutex

	// intake serializes persist-then-Add of an inbound message against
	// a running turn's snapshot-then-history read. Held across both
	// pairs, it keeps the stored history a superset of pending, which
	// the prompt assembly's tail-drop depends on.
	intake sync.Mutex
}

// Add appends a message to the pending list. Never blocks on a running
// turn.
func (b *Buffer) Add(msg providers.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, msg)
}

// Snapshot returns a copy of the pending list without clearing it, so
// concurrent Adds remain observable as growth.
func (b *Buffer) Snapshot() []providers.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]providers.Message, len(b.pending))
	copy(out, b.pending)
	return out
}

// Clear empties the pending list. Only the turn holder may call it.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = b.pending[:0]
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// TryAcquireTurn attempts to claim the conversation's turn lock without
// blocking. A false return means a turn is already in flight and the
// caller's message is left buffered for it to pick up.
func (b *Buffer) TryAcquireTurn() bool {
	return b.turn.TryLock()
}

// ReleaseTurn releases the turn lock. Must only be called by the
// goroutine that acquired it.
func (b *Buffer) ReleaseTurn() {
	b.turn.Unlock()
}

// Buffers is the process-wide conversation id to buffer map. Entries
// are created lazily and evicted once drained and unlocked, so the map
// stays bounded by active conversations rather than total users.
type Buffers struct {
	mu      sync.Mutex
	entries map[string]*Buffer
}

func NewBuffers() *Buffers {
	return &Buffers{entries: make(map[string]*Buffer)}
}

// Get returns the buffer for a conversation, creating it if absent.
func (r *Buffers) Get(conversationID string) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.entries[conversationID]
	if !ok {
		buf = &Buffer{}
		r.entries[conversationID] = buf
	}
	return buf
}

// Evict removes a conversation's buffer if it is empty and no turn
// holds it. Safe to call after every turn; a buffer that gained
// messages in the meantime stays put.
func (r *Buffers) Evict(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.entries[conversationID]
	if !ok {
		return
	}
	if !buf.turn.TryLock() {
		return
	}
	defer buf.turn.Unlock()
	if buf.Len() == 0 {
		delete(r.entries, conversationID)
	}
}

// Size returns the number of live buffers.
func (r *Buffers) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
