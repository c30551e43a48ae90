package registry

import (
	"testing"
)

func TestJoinAssignsStableMonotonicIDs(t *testing.T) {
	r := New()
	a := r.Join("alice", nil, Caps{}, 4)
	b := r.Join("bob", nil, Caps{}, 4)
	if a.ID == 0 || b.ID == 0 {
		t.Fatalf("expected non-zero slot ids")
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct slot ids, got %d and %d", a.ID, b.ID)
	}
	if b.ID <= a.ID {
		t.Fatalf("expected monotonically increasing ids, got %d then %d", a.ID, b.ID)
	}
}

func TestLeaveTombstonesIDPermanently(t *testing.T) {
	r := New()
	a := r.Join("alice", nil, Caps{}, 4)
	a.SetState(Active)
	r.Leave(a.ID)

	if _, ok := r.Get(a.ID); ok {
		t.Fatalf("expected slot to be gone after Leave")
	}
	b := r.Join("bob", nil, Caps{}, 4)
	if b.ID == a.ID {
		t.Fatalf("slot id %d was reused after tombstone", a.ID)
	}
	if a.State() != Closed {
		t.Fatalf("expected left slot to be Closed, got %v", a.State())
	}
	if _, ok := a.SendQueue.PopBlocking(0); ok {
		t.Fatalf("expected closed send queue to report no items")
	}
}

func TestActiveSlotsExcludesNonActiveAndLeft(t *testing.T) {
	r := New()
	a := r.Join("alice", nil, Caps{}, 4)
	b := r.Join("bob", nil, Caps{}, 4)
	a.SetState(Active)
	// b stays Connecting.

	active := r.ActiveSlots()
	if len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("expected only alice active, got %+v", active)
	}

	b.SetState(Active)
	r.Leave(a.ID)
	active = r.ActiveSlots()
	if len(active) != 1 || active[0].ID != b.ID {
		t.Fatalf("expected only bob active after alice left, got %+v", active)
	}
}

func TestSeqAndTimestampAccessorsAreMonotonic(t *testing.T) {
	r := New()
	a := r.Join("alice", nil, Caps{}, 4)
	if a.RecvSeq() != 0 {
		t.Fatalf("expected initial recv seq 0")
	}
	a.SetRecvSeq(5)
	if a.RecvSeq() != 5 {
		t.Fatalf("expected recv seq 5, got %d", a.RecvSeq())
	}
	first := a.NextSendSeq()
	second := a.NextSendSeq()
	if second != first+1 {
		t.Fatalf("expected NextSendSeq to increment monotonically, got %d then %d", first, second)
	}
}
