package ice

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSortInPriorityOrder(t *testing.T) {
	// Three candidate pairs, each with different addresses, initially *not* in
	// priority order (100, 99, 101).
	pairs := []*CandidatePair{
		newCandidatePair(1, cand(100, "1.1.1.1", 1000), cand(100, "1.1.1.1", 1001)),
		newCandidatePair(2, cand(99, "2.2.2.2", 2000), cand(99, "2.2.2.2", 2001)),
		newCandidatePair(3, cand(101, "3.3.3.3", 3000), cand(101, "3.3.3.3", 3001)),
	}

	pairs = sortAndPrune(pairs, true)
	if len(pairs) != 3 {
		t.Errorf("Pairs should not have been pruned: %+v", pairs)
	}

	// After sorting, the highest priority should be first.
	got := []uint32{pairs[0].local.priority, pairs[1].local.priority, pairs[2].local.priority}
	want := []uint32{101, 100, 99}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pairs not sorted by priority (-want +got):\n%s", diff)
	}
}

func TestPruneRedundant(t *testing.T) {
	// Host candidate and server-reflexive candidate with the same base.
	hostCand := cand(100, "1.1.1.1", 1000)
	hostCand.base = &Base{address: hostCand.address}
	srflxCand := cand(99, "1.2.3.4", 1234)
	srflxCand.base = hostCand.base

	// Two candidate pairs with the same local base and same remote address,
	// but different priorities.
	pairs := []*CandidatePair{
		newCandidatePair(1, hostCand, cand(100, "5.5.5.5", 5555)),
		newCandidatePair(2, srflxCand, cand(99, "5.5.5.5", 5555)),
	}

	pairs = sortAndPrune(pairs, true)
	if len(pairs) != 1 {
		t.Errorf("Pairs should have been pruned: %+v", pairs)
	}
	if pairs[0].local.priority != 100 {
		t.Errorf("Should have selected the higher priority pair: %+v", pairs[0])
	}
}

func TestPruneSkipsInProgress(t *testing.T) {
	// Host candidate and server-reflexive candidate with the same base.
	hostCand := cand(100, "1.1.1.1", 1000)
	hostCand.base = &Base{address: hostCand.address}
	srflxCand := cand(99, "1.2.3.4", 1234)
	srflxCand.base = hostCand.base

	// Two redundant candidate pairs, but the lower priority one is in-progress.
	pairs := []*CandidatePair{
		newCandidatePair(1, hostCand, cand(100, "5.5.5.5", 5555)),
		newCandidatePair(2, srflxCand, cand(99, "5.5.5.5", 5555)),
	}
	pairs[1].state = InProgress

	pairs = sortAndPrune(pairs, true)
	if len(pairs) != 2 {
		t.Errorf("In-progress pair should not have been pruned: %+v", pairs)
	}
}

func TestUnfreezeTopPerFoundation(t *testing.T) {
	// Two pairs share foundation "a" (component 1 and 2); one pair has
	// foundation "b" (component 1). Only the lowest-compid pair per
	// foundation should unfreeze.
	a1 := newCandidatePair(1, cand(100, "1.1.1.1", 1), cand(100, "9.9.9.9", 1))
	a1.foundation, a1.component = "a", 1
	a2 := newCandidatePair(2, cand(50, "1.1.1.1", 2), cand(50, "9.9.9.9", 2))
	a2.foundation, a2.component = "a", 2
	b1 := newCandidatePair(3, cand(10, "2.2.2.2", 1), cand(10, "8.8.8.8", 1))
	b1.foundation, b1.component = "b", 1

	pairs := []*CandidatePair{a1, a2, b1}
	unfreezeTopPerFoundation(pairs, true)

	if a1.state != Waiting {
		t.Errorf("a1 (lowest compid in foundation a) should be Waiting, got %v", a1.state)
	}
	if a2.state != Frozen {
		t.Errorf("a2 (higher compid in foundation a) should stay Frozen, got %v", a2.state)
	}
	if b1.state != Waiting {
		t.Errorf("b1 (only pair in foundation b) should be Waiting, got %v", b1.state)
	}
}

// cand returns a Candidate with a specified priority and IP address. Not all
// Candidate fields are populated.
func cand(priority uint32, ip string, port int) Candidate {
	c := Candidate{}
	c.priority = priority
	c.address.protocol = "udp"
	c.address.ip = ip
	c.address.port = port
	return c
}
