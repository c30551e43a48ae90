// Package registry implements the server's client slot table: an
// append-with-tombstone map guarded by a single rwlock, where slot ids are
// a monotonic counter never reused within a server run.
package registry

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asciichat/asciichat-go/internal/queue"
	"github.com/asciichat/asciichat-go/internal/wire"
)

// OutboundFrame is one logical unit of outbound data queued for a slot's
// sender goroutine. The payload is plaintext; the sender seals it with the
// slot's own send key and next sequence number immediately before writing,
// so a single video frame broadcast to N viewers is queued once per
// recipient by reference (shared Payload slice) without being re-sealed
// for every recipient up front.
type OutboundFrame struct {
	Type         wire.Type
	SourceSlotID uint32
	Flags        wire.Flag
	Payload      []byte
}

// State is a client slot's lifecycle stage.
type State int32

const (
	Connecting State = iota
	Handshaking
	Active
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Handshaking:
		return "Handshaking"
	case Active:
		return "Active"
	case Draining:
		return "Draining"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Caps is the capability set a client negotiated at handshake time.
type Caps struct {
	ColorMode string
	MaxWidth  int
	MaxHeight int
	Audio     bool
}

// Slot is one registry entry: the shared state borrowed by exactly one
// receive-loop goroutine and one send-loop goroutine for its lifetime.
type Slot struct {
	ID          uint32
	DisplayName string
	Addr        net.Addr
	Caps        Caps

	SendKey [32]byte
	RecvKey [32]byte

	recvSeq uint64 // atomic
	sendSeq uint64 // atomic

	lastRxNS int64 // atomic, UnixNano
	lastTxNS int64 // atomic, UnixNano

	state int32 // atomic, State

	// SendQueue carries outbound frames to this slot's sender goroutine.
	// Every goroutine that fans traffic out to this client pushes onto it;
	// the sender goroutine is its only consumer.
	SendQueue *queue.Queue[OutboundFrame]
}

// RecvSeq/SendSeq/LastRxNS/LastTxNS/State are accessed by both the slot's
// receive and send goroutines and so go through atomics rather than the
// registry's rwlock, which only guards slot table membership.

func (s *Slot) RecvSeq() uint64        { return atomic.LoadUint64(&s.recvSeq) }
func (s *Slot) SetRecvSeq(v uint64)    { atomic.StoreUint64(&s.recvSeq, v) }
func (s *Slot) SendSeq() uint64        { return atomic.LoadUint64(&s.sendSeq) }
func (s *Slot) NextSendSeq() uint64    { return atomic.AddUint64(&s.sendSeq, 1) }
func (s *Slot) TouchRx(t time.Time)    { atomic.StoreInt64(&s.lastRxNS, t.UnixNano()) }
func (s *Slot) TouchTx(t time.Time)    { atomic.StoreInt64(&s.lastTxNS, t.UnixNano()) }
func (s *Slot) LastRx() time.Time      { return time.Unix(0, atomic.LoadInt64(&s.lastRxNS)) }
func (s *Slot) LastTx() time.Time      { return time.Unix(0, atomic.LoadInt64(&s.lastTxNS)) }
func (s *Slot) State() State           { return State(atomic.LoadInt32(&s.state)) }
func (s *Slot) SetState(v State)       { atomic.StoreInt32(&s.state, int32(v)) }

// Registry is the server's client slot table.
type Registry struct {
	mu     sync.RWMutex
	nextID uint32 // atomic
	slots  map[uint32]*Slot
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{slots: make(map[uint32]*Slot)}
}

// Join allocates a fresh, never-reused slot id and inserts a new slot in
// the Connecting state.
func (r *Registry) Join(displayName string, addr net.Addr, caps Caps, sendQueueCapacity int) *Slot {
	id := atomic.AddUint32(&r.nextID, 1)
	now := time.Now()
	slot := &Slot{
		ID:          id,
		DisplayName: displayName,
		Addr:        addr,
		Caps:        caps,
		SendQueue:   queue.New[OutboundFrame](sendQueueCapacity, queue.DropOldest, 0),
	}
	slot.SetState(Connecting)
	slot.TouchRx(now)
	slot.TouchTx(now)

	r.mu.Lock()
	r.slots[id] = slot
	r.mu.Unlock()
	return slot
}

// Leave removes id from the table (the tombstone: the id is simply never
// reinserted, since nextID only increases) and closes its send queue so a
// blocked sender goroutine observes Closed.
func (r *Registry) Leave(id uint32) {
	r.mu.Lock()
	slot, ok := r.slots[id]
	if ok {
		delete(r.slots, id)
	}
	r.mu.Unlock()
	if ok {
		slot.SetState(Closed)
		slot.SendQueue.Close()
	}
}

// Get looks up a slot by id.
func (r *Registry) Get(id uint32) (*Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot, ok := r.slots[id]
	return slot, ok
}

// ActiveSlots returns a point-in-time snapshot of every slot in the Active
// state. Because deletion and snapshotting both hold the rwlock, a slot
// whose CLIENT_LEAVE has already been processed by Leave can never appear
// in a snapshot taken afterward.
func (r *Registry) ActiveSlots() []*Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Slot, 0, len(r.slots))
	for _, slot := range r.slots {
		if slot.State() == Active {
			out = append(out, slot)
		}
	}
	return out
}

// Len reports the current slot count, regardless of state.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}
