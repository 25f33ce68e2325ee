package ice

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/lanikai/srtpice/internal/stun"
)

// Checklist owns pair formation, pruning, connectivity checks, and the
// inbound STUN server for a single ICE component (RFC 8445 §6).
type Checklist struct {
	agent     *Agent
	component int

	state checklistState

	// Checklist state listeners, each with a unique id.
	listeners      map[int]chan checklistState
	nextListenerID int

	// ICE credentials. localUfrag/remotePassword etc. are held on the
	// owning Agent; these are the pieces specific to building STUN
	// attributes for this component's checks.
	localUfrag, remoteUfrag   string
	localPassword, remotePassword string

	triggeredCheckPolicy TriggeredCheckPolicy

	// ID for next candidate pair to be added
	nextPairID int

	pairs []*CandidatePair

	triggeredQueue []*CandidatePair

	// Valid list
	valid []*CandidatePair

	// Selected candidate pair
	selected *CandidatePair

	// Mutex to prevent reading from pairs while they're being modified.
	mutex sync.Mutex

	// Index of the next candidate pair to be checked
	nextToCheck int
}

type checklistState int

const (
	// checklistNull is the pre-init state, before any candidate pairs have
	// been formed (matches original_source's ICE_CHECKLIST_NULL).
	checklistNull checklistState = iota
	checklistRunning
	checklistCompleted
	checklistFailed
)

// TriggeredCheckPolicy controls what happens when a triggered check
// (RFC 8445 §7.3.1.4) arrives for a pair that is already In-Progress or
// Succeeded. original_source's stunsrv.c ships with the cancel-and-retry
// branch disabled (#if 0); PreserveInProgress matches that shipped
// behavior and is the default.
type TriggeredCheckPolicy int

const (
	PreserveInProgress TriggeredCheckPolicy = iota
	CancelInProgress
)

func newChecklist(agent *Agent, component int, localUfrag, remoteUfrag, localPassword, remotePassword string) *Checklist {
	return &Checklist{
		agent:          agent,
		component:      component,
		state:          checklistNull,
		localUfrag:     localUfrag,
		remoteUfrag:    remoteUfrag,
		localPassword:  localPassword,
		remotePassword: remotePassword,
	}
}

// Pair up local candidates with remote candidates, and add them to the checklist. Then re-sort and
// re-prune, and unfreeze top candidate pairs.
func (cl *Checklist) addCandidatePairs(locals, remotes []Candidate) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	for _, local := range locals {
		for _, remote := range remotes {
			if canBePaired(local, remote) {
				p := newCandidatePair(cl.nextPairID, local, remote)
				cl.nextPairID++
				log.Debug("Adding candidate pair %s", p)
				cl.pairs = append(cl.pairs, p)
			}
		}
	}

	if cl.state == checklistNull && len(cl.pairs) > 0 {
		cl.state = checklistRunning
	}

	controlling := cl.agent.isControlling()
	cl.pairs = sortAndPrune(cl.pairs, controlling)
	unfreezeTopPerFoundation(cl.pairs, controlling)
}

// unfreezeTopPerFoundation implements RFC 8445 §6.1.2.6's state
// computation: pairs are grouped by foundation, and within each group the
// pair with the lowest component id (ties broken by highest priority) is
// moved to Waiting while the rest of the group stays Frozen.
// [spec §9] the original source's ice_candpair_set_states ANDs the
// component and priority comparisons together, which picks neither the
// lowest-compid nor the highest-priority pair in all cases; this picks the
// group's representative per RFC instead.
func unfreezeTopPerFoundation(pairs []*CandidatePair, controlling bool) {
	groups := make(map[string][]*CandidatePair)
	for _, p := range pairs {
		if p.state != Frozen {
			continue
		}
		groups[p.foundation] = append(groups[p.foundation], p)
	}

	for _, group := range groups {
		best := group[0]
		for _, p := range group[1:] {
			switch {
			case p.component < best.component:
				best = p
			case p.component == best.component && p.Priority(controlling) > best.Priority(controlling):
				best = p
			}
		}
		best.state = Waiting
	}
}

// Only pair candidates for the same component. Their transport addresses must be compatible.
func canBePaired(local, remote Candidate) bool {
	return local.component == remote.component &&
		local.address.protocol == remote.address.protocol &&
		local.address.family == remote.address.family &&
		local.address.linkLocal == remote.address.linkLocal
}

// sortAndPrune sorts the candidate pairs from highest to lowest priority, then
// prunes any redundant pairs. controlling reflects the local agent's current
// role, since pair priority depends on which side is controlling.
func sortAndPrune(pairs []*CandidatePair, controlling bool) []*CandidatePair {
	// [RFC8445 §6.1.2.3] Sort pairs from highest to lowest priority.
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Priority(controlling) > pairs[j].Priority(controlling)
	})

	// [RFC8445 §6.1.2.4] Prune redundant pairs.
	for i := 0; i < len(pairs); i++ {
		p := pairs[i]
		// [draft-ietf-ice-trickle-21 §10] Preserve pairs for which checks are in flight.
		switch p.state {
		case InProgress, Succeeded, Failed:
			continue
		}
		// Compare this pair against higher priority pairs, and remove if redundant.
		for j := 0; j < i; j++ {
			if isRedundant(p, pairs[j]) {
				log.Debug("Pruning %s in favor of %s", p.id, pairs[j].id)
				pairs = append(pairs[:i], pairs[i+1:]...)
				i--
				break
			}
		}
	}

	return pairs
}

// [RFC8445 §6.1.2.4] Two candidate pairs are redundant if they have the same
// remote candidate and same local base.
func isRedundant(p1, p2 *CandidatePair) bool {
	return p1.remote.address == p2.remote.address && p1.local.base.address == p2.local.base.address
}

func (cl *Checklist) run(ctx context.Context) {
	lid, stateCh := cl.addListener()

	go func() {
		defer cl.removeListener(lid)

		// Timer for periodic connectivity checks. This is stopped once a
		// candidate pair has been selected.
		Ta := time.NewTicker(50 * time.Millisecond)
		defer Ta.Stop()

		// Timer for keepalives.
		Tr := time.NewTicker(30 * time.Second)
		defer Tr.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case newState := <-stateCh:
				// Checklist state has changed.
				log.Debug("Checklist state: %d", newState)
				switch newState {
				case checklistCompleted:
					// Stop periodic checks, send any queued nominating check,
					// and keep running for keepalives on Tr.
					Ta.Stop()
					cl.mutex.Lock()
					queued := cl.triggeredQueue
					cl.triggeredQueue = nil
					cl.mutex.Unlock()
					for _, p := range queued {
						if err := cl.sendCheck(p); err != nil {
							log.Warn("Failed to send nominating check: %s", err)
						}
					}
				case checklistFailed:
					Ta.Stop()
					Tr.Stop()
					return
				}

			case <-Ta.C:
				// [RFC8445 §6.1.4.2] Periodic connectivity check.
				if p := cl.nextPair(); p != nil {
					log.Debug("Next candidate pair to check: %s\n", p)
					if err := cl.sendCheck(p); err != nil {
						log.Warn("Failed to send connectivity check: %s", err)
					}
				}

			case <-Tr.C:
				// [RFC8445 §11] Send STUN binding indication to selected pair.
				cl.mutex.Lock()
				p := cl.selected
				cl.mutex.Unlock()
				if p != nil {
					p.local.base.sendStun(stun.NewBindingIndication(), p.remote.address.netAddr(), nil)
				}
			}
		}
	}()
}

func (cl *Checklist) getSelected(ctx context.Context) (*CandidatePair, error) {
	lid, stateCh := cl.addListener()
	defer cl.removeListener(lid)

	for {
		cl.mutex.Lock()
		selected := cl.selected
		cl.mutex.Unlock()
		if selected != nil {
			return selected, nil
		}

		select {
		case <-stateCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// [RFC8445 §7.3.1.3-4] Create a peer reflexive candidate and pair with the base.
func (cl *Checklist) adoptPeerReflexiveCandidate(base *Base, raddr net.Addr, priority uint32) *CandidatePair {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	local := makeHostCandidate(base.sdpMid, base)
	remote := makePeerReflexiveCandidate(base.sdpMid, raddr, base, priority)
	log.Debug("New peer-reflexive %s", remote)

	p := newCandidatePair(cl.nextPairID, local, remote)
	p.state = Waiting
	cl.pairs = append(cl.pairs, p)
	cl.nextPairID++

	cl.pairs = sortAndPrune(cl.pairs, cl.agent.isControlling())

	for _, p2 := range cl.pairs {
		if p2.remote.address == remote.address && p2.local.address == local.address {
			return p2
		}
	}
	return p
}

// [RFC8445 §7.2.5.2.1] A connectivity check's response carried a mapped
// address that doesn't match the base it was sent from: that address is a
// new local peer-reflexive candidate, paired with the remote candidate the
// check was sent to. priority is the PRIORITY attribute from the original
// request (i.e. local.peerPriority()), per §7.2.5.3.1.
func (cl *Checklist) adoptLocalPeerReflexiveCandidate(base *Base, mapped net.Addr, remote Candidate, priority uint32) *CandidatePair {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	local := makePeerReflexiveCandidate(base.sdpMid, mapped, base, priority)
	log.Debug("New local peer-reflexive %s", local)

	for _, p2 := range cl.pairs {
		if p2.local.address == local.address && p2.remote.address == remote.address {
			return p2
		}
	}

	p := newCandidatePair(cl.nextPairID, local, remote)
	cl.pairs = append(cl.pairs, p)
	cl.nextPairID++

	cl.pairs = sortAndPrune(cl.pairs, cl.agent.isControlling())

	for _, p2 := range cl.pairs {
		if p2.local.address == local.address && p2.remote.address == remote.address {
			return p2
		}
	}
	return p
}

// Return the next candidate pair to check for connectivity.
func (cl *Checklist) nextPair() *CandidatePair {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	if len(cl.triggeredQueue) > 0 {
		p := cl.triggeredQueue[0]
		cl.triggeredQueue = cl.triggeredQueue[1:]
		return p
	}

	// Find the next pair in the Waiting state.
	n := len(cl.pairs)
	for i := 0; i < n; i++ {
		k := (cl.nextToCheck + i) % n
		p := cl.pairs[k]
		if p.state == Waiting {
			cl.nextToCheck = (k + 1) % n
			return p
		}
	}

	// Nothing to do.
	return nil
}

func (cl *Checklist) sendCheck(p *CandidatePair) error {
	req := stun.NewBindingRequest("")
	req.AddUsername(cl.remoteUfrag + ":" + cl.localUfrag)
	req.AddPriority(p.local.peerPriority())

	role, tiebreaker := cl.agent.roleAndTiebreaker()
	if role == Controlling {
		req.AddIceControlling(tiebreaker)
	} else {
		req.AddIceControlled(tiebreaker)
	}
	if p.nominated && role == Controlling {
		req.AddUseCandidate()
	}

	req.AddMessageIntegrity(cl.remotePassword)
	req.AddFingerprint()

	p.state = InProgress
	retransmit := time.AfterFunc(cl.rto(), func() {
		// If we don't get a response within the RTO, then move the pair back to Waiting.
		if p.state == InProgress {
			p.state = Waiting
		}
	})

	log.Debug("%s: Sending to %s from %s: %s\n", p.id, p.remote.address, p.local.address, req)
	return p.local.base.sendStun(req, p.remote.address.netAddr(), func(resp *stun.Message, raddr net.Addr, base *Base) {
		retransmit.Stop()
		cl.processResponse(p, resp, raddr)
	})
}

// Compute retransmission time.
// https://tools.ietf.org/html/rfc8445#section-14.3
func (cl *Checklist) rto() time.Duration {
	n := 0
	for _, p := range cl.pairs {
		if p.state == Waiting || p.state == InProgress {
			n++
		}
	}
	// TODO: Base this off Ta, which may be less than 50ms.
	return time.Duration(n) * 50 * time.Millisecond
}

func (cl *Checklist) processResponse(p *CandidatePair, resp *stun.Message, raddr net.Addr) {
	if p.state != InProgress {
		log.Debug("Received unexpected STUN response for %s:\n%s\n", p, resp)
		return
	}

	switch resp.Class {
	case stun.ClassSuccessResponse:
		log.Debug("%s: Successful connectivity check", p.id)
		p.state = Succeeded

		// [RFC8445 §7.2.5.2.1] The local candidate of the valid pair is the
		// base from which the check was sent only if the mapped address
		// returned matches it. Otherwise a peer-reflexive local candidate
		// exists at the mapped address, and that is the pair that goes on
		// the valid list; p itself stays Succeeded but off the valid list.
		valid := p
		if mapped := resp.MappedAddress(); mapped != nil {
			if makeTransportAddress(mapped) != p.local.address {
				valid = cl.adoptLocalPeerReflexiveCandidate(p.local.base, mapped, p.remote, p.local.peerPriority())
				valid.state = Succeeded
			}
		}

		cl.mutex.Lock()
		cl.valid = append(cl.valid, valid)
		cl.mutex.Unlock()
	case stun.ClassErrorResponse:
		if code, _, ok := resp.ErrorCode(); ok && code == 487 {
			// [spec §4.9] On 487, flip role if our tiebreaker loses, then
			// re-enqueue the pair.
			cl.agent.handleRoleConflictResponse()
			p.state = Waiting
			return
		}
		p.state = Failed
	default:
		log.Warn("Unexpected STUN message class in response: %s", resp)
		p.state = Failed
	}

	cl.updateState()
}

func (cl *Checklist) nominate(p *CandidatePair) {
	if p.state == Frozen {
		p.state = Waiting
	}
	p.nominated = true
	events.Info().Int("component", cl.component).Str("pair", p.id).Msg("nominated candidate pair")
	cl.updateState()
}

// [spec §4.11] A checklist is complete when every pair is Succeeded or
// Failed. Fails if no pair made it into the valid list; otherwise picks the
// highest-priority valid, Succeeded pair as selected and, if controlling,
// nominates it.
func (cl *Checklist) updateState() {
	cl.mutex.Lock()

	if cl.state != checklistRunning {
		cl.mutex.Unlock()
		return
	}

	allConcluded := true
	for _, p := range cl.pairs {
		if p.state != Succeeded && p.state != Failed {
			allConcluded = false
			break
		}
	}

	for _, p := range cl.valid {
		if p.nominated {
			log.Info("Selected %s", p)
			events.Info().Int("component", cl.component).Str("pair", p.id).Msg("selected candidate pair")
			cl.selected = p
			cl.state = checklistCompleted
			break
		}
	}

	if cl.state != checklistCompleted && allConcluded {
		if len(cl.valid) == 0 {
			cl.state = checklistFailed
		} else {
			best := cl.valid[0]
			for _, p := range cl.valid[1:] {
				if p.Priority(cl.agent.isControlling()) > best.Priority(cl.agent.isControlling()) {
					best = p
				}
			}
			if cl.agent.isControlling() {
				cl.triggeredQueue = append(cl.triggeredQueue, best)
				best.nominated = true
				cl.selected = best
				cl.state = checklistCompleted
				events.Info().Int("component", cl.component).Str("pair", best.id).Msg("selected candidate pair")
			} else {
				// Controlled side waits for the peer's nominating request;
				// the pair becomes selected once that request is processed
				// by handleStunRequest.
			}
		}
	}

	state := cl.state
	selected := cl.selected
	cl.mutex.Unlock()

	if state == checklistCompleted {
		cl.agent.onChecklistComplete(cl.component, selected, nil)
	} else if state == checklistFailed {
		cl.agent.onChecklistComplete(cl.component, nil, errChecklistFailed)
	}

	// Notify listeners that the state has changed.
	cl.mutex.Lock()
	for _, ch := range cl.listeners {
		select {
		case ch <- cl.state:
		default:
		}
	}
	cl.mutex.Unlock()
}

func (cl *Checklist) addListener() (int, <-chan checklistState) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	id := cl.nextListenerID
	ch := make(chan checklistState, 1)
	if cl.listeners == nil {
		cl.listeners = make(map[int]chan checklistState)
	}
	cl.listeners[id] = ch
	cl.nextListenerID++
	return id, ch
}

func (cl *Checklist) removeListener(id int) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	delete(cl.listeners, id)
}

// findPair returns first candidate pair matching the base and remote address
func (cl *Checklist) findPair(base *Base, raddr net.Addr) *CandidatePair {
	remoteAddress := makeTransportAddress(raddr)

	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	for _, p := range cl.pairs {
		if p.local.address == base.address && p.remote.address == remoteAddress {
			return p
		}
	}

	return nil
}

func (cl *Checklist) triggerCheck(p *CandidatePair) {
	switch p.state {
	case Frozen, Waiting:
		cl.mutex.Lock()
		cl.triggeredQueue = append(cl.triggeredQueue, p)
		cl.mutex.Unlock()
	case Failed:
		p.state = Waiting
		cl.mutex.Lock()
		cl.triggeredQueue = append(cl.triggeredQueue, p)
		cl.mutex.Unlock()
	case InProgress, Succeeded:
		if cl.triggeredCheckPolicy == CancelInProgress && p.state == InProgress {
			p.state = Waiting
			cl.mutex.Lock()
			cl.triggeredQueue = append(cl.triggeredQueue, p)
			cl.mutex.Unlock()
		}
		// PreserveInProgress (default): leave the pair alone, matching the
		// original's disabled cancel-and-retry branch.
	}
}
