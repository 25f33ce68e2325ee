package ice

import (
	"fmt"
)

// CandidatePair is a local/remote candidate tuple under connectivity
// checking, per RFC 8445 §6.1.2.
type CandidatePair struct {
	id         string
	local      Candidate
	remote     Candidate
	foundation string
	component  int

	state     CandidatePairState
	nominated bool
}

// CandidatePairState is the checking state of a pair (RFC 8445 §6.1.2.6).
type CandidatePairState int

const (
	Frozen CandidatePairState = iota
	Waiting
	InProgress
	Succeeded
	Failed
)

func newCandidatePair(seq int, local, remote Candidate) *CandidatePair {
	if local.component != remote.component {
		log.Panicf("Candidates in pair have different components: %d != %d", local.component, remote.component)
	}
	id := fmt.Sprintf("Pair#%d", seq)
	foundation := fmt.Sprintf("%s/%s", local.foundation, remote.foundation)
	return &CandidatePair{id: id, local: local, remote: remote, foundation: foundation, component: local.component}
}

func (p *CandidatePair) String() string {
	var state string
	switch p.state {
	case Frozen:
		state = "Frozen"
	case Waiting:
		state = "Waiting"
	case InProgress:
		state = "In Progress"
	case Succeeded:
		state = "Succeeded"
	case Failed:
		state = "Failed"
	}
	nom := ""
	if p.nominated {
		nom = ", nominated"
	}
	return fmt.Sprintf("%s: %s -> %s [%s%s]", p.id, p.local.address, p.remote.address, state, nom)
}

// Priority computes the pair priority (RFC 8445 §6.1.2.3):
//
//	2^32 * min(G,D) + 2 * max(G,D) + (G>D ? 1 : 0)
//
// where G is the controlling agent's candidate priority and D is the
// controlled agent's candidate priority for this pair. Which side (local
// or remote) is "controlling" depends on the local agent's current role,
// and must be recomputed whenever that role flips (spec §4.7) — so the
// role is passed in rather than cached on the pair.
func (p *CandidatePair) Priority(localIsControlling bool) uint64 {
	var g, d uint64
	if localIsControlling {
		g = uint64(p.local.priority)
		d = uint64(p.remote.priority)
	} else {
		g = uint64(p.remote.priority)
		d = uint64(p.local.priority)
	}

	var b uint64
	if g > d {
		b = 1
	}
	return min(g, d)<<32 + max(g, d)<<1 + b
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
