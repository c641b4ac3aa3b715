package registry

import (
	"testing"
	"time"
)

func TestRegister_UniqueIDs(t *testing.T) {
	r := New(nil, nil, 3, time.Minute)

	a := r.Register("10.0.0.1", 9000, time.Now())
	b := r.Register("10.0.0.2", 9000, time.Now())

	if a.WorkerID == b.WorkerID {
		t.Errorf("expected unique worker ids, got %s twice", a.WorkerID)
	}
}

func TestRegister_RoleMembership(t *testing.T) {
	r := New([]string{"10.0.0.0/24"}, []string{"10.0.1.0/24"}, 3, time.Minute)

	sender := r.Register("10.0.0.5", 0, time.Now())
	if !sender.InSrcNetworks || sender.InDestNetworks {
		t.Errorf("expected sender-only membership, got src=%v dest=%v", sender.InSrcNetworks, sender.InDestNetworks)
	}

	receiver := r.Register("10.0.1.5", 9000, time.Now())
	if receiver.InSrcNetworks || !receiver.InDestNetworks {
		t.Errorf("expected receiver-only membership, got src=%v dest=%v", receiver.InSrcNetworks, receiver.InDestNetworks)
	}
}

func TestAssign_NoEligibleReceiver(t *testing.T) {
	r := New(nil, nil, 3, time.Minute)
	now := time.Now()

	a := r.Register("10.0.0.1", 0, now)

	out, err := r.Assign(a.WorkerID, now)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if !out.RequesterIsSender {
		t.Fatal("expected requester to be a sender")
	}
	if out.Receiver != nil {
		t.Errorf("expected no eligible receiver, got %+v", out.Receiver)
	}
}

func TestAssign_RoleGated(t *testing.T) {
	r := New([]string{"10.0.0.0/24"}, []string{"10.0.1.0/24"}, 3, time.Minute)
	now := time.Now()

	destOnly := r.Register("10.0.1.9", 9000, now)

	out, err := r.Assign(destOnly.WorkerID, now)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if out.RequesterIsSender {
		t.Error("expected requester to be rejected as non-sender")
	}
}

func TestAssign_DistinctMachinesAndPairing(t *testing.T) {
	r := New([]string{"10.0.0.0/16"}, []string{"10.0.0.0/16"}, 3, time.Minute)
	now := time.Now()

	a := r.Register("10.0.0.1", 9000, now)
	b := r.Register("10.0.0.2", 9000, now)

	out, err := r.Assign(a.WorkerID, now)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if out.Receiver == nil {
		t.Fatal("expected an eligible receiver")
	}
	if out.Receiver.WorkerID != b.WorkerID {
		t.Errorf("expected receiver %s, got %s", b.WorkerID, out.Receiver.WorkerID)
	}
	if out.Receiver.IP == a.IP {
		t.Error("receiver must be a distinct machine from the requester")
	}
}

func TestAssign_NoSimultaneousReciprocalPair(t *testing.T) {
	r := New([]string{"10.0.0.0/16"}, []string{"10.0.0.0/16"}, 3, time.Minute)
	now := time.Now()

	a := r.Register("10.0.0.1", 9000, now)
	b := r.Register("10.0.0.2", 9000, now)

	// A is assigned B as a receiver.
	out, err := r.Assign(a.WorkerID, now)
	if err != nil || out.Receiver == nil || out.Receiver.WorkerID != b.WorkerID {
		t.Fatalf("expected A to be assigned B, got %+v err=%v", out, err)
	}

	// B must not immediately be assigned A back.
	out2, err := r.Assign(b.WorkerID, now)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if out2.Receiver != nil && out2.Receiver.WorkerID == a.WorkerID {
		t.Error("B must not be assigned A while A still holds B (reciprocal pair)")
	}
}

func TestAssign_ReceiverHeldByLiveClientExcluded(t *testing.T) {
	r := New([]string{"10.0.0.0/16"}, []string{"10.0.0.0/16"}, 3, time.Minute)
	now := time.Now()

	a := r.Register("10.0.0.1", 9000, now)
	b := r.Register("10.0.0.2", 9000, now)
	c := r.Register("10.0.0.3", 9000, now)

	if _, err := r.Assign(a.WorkerID, now); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	// b is now held by a (first eligible in insertion order).

	out, err := r.Assign(c.WorkerID, now)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if out.Receiver == nil {
		t.Fatal("expected c to still find an eligible receiver")
	}
	if out.Receiver.WorkerID == b.WorkerID {
		t.Error("b is already held by a live client and must not be reassigned")
	}
}

func TestAssign_ExcludesDisabledReceiver(t *testing.T) {
	r := New([]string{"10.0.0.0/16"}, []string{"10.0.0.0/16"}, 1, time.Minute)
	now := time.Now()

	a := r.Register("10.0.0.1", 9000, now)
	b := r.Register("10.0.0.2", 9000, now)

	if _, _, err := r.RecordConnectFailure(b.WorkerID); err != nil {
		t.Fatalf("RecordConnectFailure failed: %v", err)
	}
	if _, justDisabled, err := r.RecordConnectFailure(b.WorkerID); err != nil || !justDisabled {
		t.Fatalf("expected disablement notice on crossing MAX_CONNECT_ERRORS+1, got justDisabled=%v err=%v", justDisabled, err)
	}

	out, err := r.Assign(a.WorkerID, now)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if out.Receiver != nil {
		t.Error("disabled receiver must not be offered")
	}
}

func TestAssign_ExcludesStaleReceiver(t *testing.T) {
	r := New([]string{"10.0.0.0/16"}, []string{"10.0.0.0/16"}, 3, time.Minute)
	now := time.Now()

	a := r.Register("10.0.0.1", 9000, now.Add(-2*time.Minute))
	r.Register("10.0.0.2", 9000, now.Add(-2*time.Minute))

	out, err := r.Assign(a.WorkerID, now)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if out.Receiver != nil {
		t.Error("receiver whose last_contact predates KEEPALIVE_TIMEOUT must not be offered")
	}
}

func TestKeepAlive_UnknownWorker(t *testing.T) {
	r := New(nil, nil, 3, time.Minute)
	if err := r.KeepAlive("nope", time.Now()); err != ErrUnknownWorker {
		t.Errorf("expected ErrUnknownWorker, got %v", err)
	}
}
