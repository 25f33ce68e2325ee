package ice

import (
	"context"
	"net"
	"sync"

	"github.com/lanikai/srtpice/internal/stun"
	"golang.org/x/xerrors"
)

// RFC 8445: https://tools.ietf.org/html/rfc8445
//
// Agent implements a Full ICE agent over one or more components of a
// single data stream (identified by mid). Each component owns its own set
// of bases, candidates, and Checklist; a data stream with both RTP and
// RTCP components runs two independent checklists side by side.

// Role identifies which side of the session coordinates nomination
// (RFC 8445 §4). It can change at runtime if a role conflict is detected
// during connectivity checks (§7.3.1.1 / §7.3.1.2).
type Role int

const (
	Controlling Role = iota
	Controlled
)

func (r Role) String() string {
	if r == Controlling {
		return "controlling"
	}
	return "controlled"
}

// componentState bundles everything the Agent tracks for one ICE
// component: the bases it listens on, the candidates gathered or learned
// for it, and the checklist driving its connectivity checks.
type componentState struct {
	id     int
	dataIn chan []byte

	candMu           sync.Mutex
	bases            []*Base
	localCandidates  []Candidate
	remoteCandidates []Candidate

	checklist *Checklist

	selectedOnce sync.Once
	conn         *ChannelConn
}

type Agent struct {
	mid        string
	ufrag, pwd string

	roleMu     sync.Mutex
	role       Role
	tiebreaker uint64

	credMu         sync.Mutex
	remoteUfrag    string
	remotePassword string

	onCheckComplete func(Role, error)

	ctx context.Context

	compMu     sync.Mutex
	components map[int]*componentState
	remaining  int
	firstErr   error
	doneOnce   sync.Once
}

// NewAgent creates an ICE agent in the given starting role, using
// tiebreaker to resolve role conflicts (RFC 8445 §7.3.1.1) and
// ufrag/pwd as this side's ICE credentials. onCheckComplete, if non-nil,
// is invoked exactly once, after every component's checklist has
// concluded, with the agent's final role and the first error encountered
// (nil if every component selected a pair).
func NewAgent(role Role, tiebreaker uint64, ufrag, pwd string, onCheckComplete func(Role, error)) *Agent {
	return &Agent{
		ufrag:           ufrag,
		pwd:             pwd,
		role:            role,
		tiebreaker:      tiebreaker,
		onCheckComplete: onCheckComplete,
		components:      make(map[int]*componentState),
	}
}

// SetMid sets the SDP media identifier tagged onto candidates created by
// this agent. It must be called before the first AddLocalCandidate or
// AddRemoteCandidate if the candidates need to carry a particular mid.
func (a *Agent) SetMid(mid string) {
	a.mid = mid
}

// SetRemoteCredentials records the peer's ice-ufrag/ice-pwd, learned out
// of band via signaling, and passes them on to every component's checklist
// created so far. It must be called before connectivity checks start,
// since STUN USERNAME/MESSAGE-INTEGRITY on connectivity checks depend on
// both sides' credentials (RFC 8445 §7.2.2, §7.3.1.1).
func (a *Agent) SetRemoteCredentials(ufrag, password string) {
	a.credMu.Lock()
	a.remoteUfrag = ufrag
	a.remotePassword = password
	a.credMu.Unlock()

	a.compMu.Lock()
	for _, cs := range a.components {
		cs.checklist.mutex.Lock()
		cs.checklist.remoteUfrag = ufrag
		cs.checklist.remotePassword = password
		cs.checklist.mutex.Unlock()
	}
	a.compMu.Unlock()
}

func (a *Agent) isControlling() bool {
	a.roleMu.Lock()
	defer a.roleMu.Unlock()
	return a.role == Controlling
}

func (a *Agent) roleAndTiebreaker() (Role, uint64) {
	a.roleMu.Lock()
	defer a.roleMu.Unlock()
	return a.role, a.tiebreaker
}

// handleRoleConflictResponse handles a 487 Role Conflict response to one
// of our own outbound checks. [RFC8445 §7.2.5.1]: the peer has already
// performed the tiebreak comparison and concluded we should switch, so we
// flip unconditionally and retry the check.
func (a *Agent) handleRoleConflictResponse() {
	a.roleMu.Lock()
	if a.role == Controlling {
		a.role = Controlled
	} else {
		a.role = Controlling
	}
	newRole := a.role
	a.roleMu.Unlock()
	log.Info("Switched ICE role to %s after 487 Role Conflict", newRole)
	events.Warn().Str("newRole", newRole.String()).Msg("role conflict: switched role after 487")
}

// resolveRoleConflict implements the inbound side of role-conflict
// detection (RFC 8445 §7.3.1.1). A conflict exists only when the peer's
// claimed role matches ours. [spec §9 decision 3] uses a strict '>' rather
// than the original's '>=' when comparing tiebreakers, so that neither
// side can lose to itself: the higher tiebreaker always keeps its role.
func (a *Agent) resolveRoleConflict(remoteRole Role, remoteTiebreaker uint64) (conflict, switched bool) {
	a.roleMu.Lock()
	defer a.roleMu.Unlock()

	if remoteRole != a.role {
		return false, false
	}
	conflict = true

	if a.tiebreaker > remoteTiebreaker {
		// We win the tiebreak: keep our role, caller sends 487.
		events.Warn().Str("role", a.role.String()).Msg("role conflict: won tiebreak, sending 487")
		return true, false
	}

	// We lose: switch roles ourselves instead of erroring.
	if a.role == Controlling {
		a.role = Controlled
	} else {
		a.role = Controlling
	}
	events.Warn().Str("newRole", a.role.String()).Msg("role conflict: lost tiebreak, switched role")
	return true, true
}

func (a *Agent) component(compID int) *componentState {
	a.compMu.Lock()
	defer a.compMu.Unlock()
	return a.components[compID]
}

// ensureComponent returns the componentState for compID, creating it (and
// its Checklist) on first use.
func (a *Agent) ensureComponent(compID int) *componentState {
	a.compMu.Lock()
	defer a.compMu.Unlock()

	if cs, ok := a.components[compID]; ok {
		return cs
	}

	a.credMu.Lock()
	remoteUfrag, remotePassword := a.remoteUfrag, a.remotePassword
	a.credMu.Unlock()

	cs := &componentState{
		id:     compID,
		dataIn: make(chan []byte, 64),
	}
	cs.checklist = newChecklist(a, compID, a.ufrag, remoteUfrag, a.pwd, remotePassword)
	a.components[compID] = cs
	a.remaining++
	return cs
}

// AddLocalCandidate registers base as a local candidate source for
// component, starting its read loop if this is the first time base has
// been seen, and returns the resulting host candidate so the caller can
// signal it (e.g. trickle it to the peer as an SDP "candidate" line).
func (a *Agent) AddLocalCandidate(component int, base *Base) (Candidate, error) {
	if base.component != component {
		return Candidate{}, xerrors.Errorf("ice: add local candidate: %w: base component %d != %d", ErrInvalidArgument, base.component, component)
	}

	cs := a.ensureComponent(component)

	cs.candMu.Lock()
	known := false
	for _, b := range cs.bases {
		if b == base {
			known = true
			break
		}
	}
	if !known {
		cs.bases = append(cs.bases, base)
	}
	cs.candMu.Unlock()

	if !known {
		go a.runBase(cs, base)
	}

	c := makeHostCandidate(a.mid, base)
	a.addLocalCandidate(cs, c)
	return c, nil
}

// GatherLocalCandidates discovers host and server-reflexive candidates for
// component on every usable local interface, reporting each one to take
// as it becomes available. It mirrors the teacher's
// EstablishConnection/gatherLocalCandidates shape, but as a component step
// instead of owning the whole connection lifecycle.
func (a *Agent) GatherLocalCandidates(ctx context.Context, component int, take func(Candidate)) error {
	bases, err := initializeBases(component, a.mid)
	if err != nil {
		return err
	}

	cs := a.ensureComponent(component)
	cs.candMu.Lock()
	cs.bases = append(cs.bases, bases...)
	cs.candMu.Unlock()

	for _, base := range bases {
		go a.runBase(cs, base)
	}

	gatherAllCandidates(ctx, a.mid, bases, func(c Candidate) {
		a.addLocalCandidate(cs, c)
		take(c)
	})
	return nil
}

// AddRemoteCandidate parses an SDP "candidate" attribute value (as
// trickled by the peer) and pairs it against component's known local
// candidates. An empty desc signals end-of-trickling and is a no-op.
func (a *Agent) AddRemoteCandidate(component int, desc string) error {
	if desc == "" {
		return nil
	}

	c, err := ParseCandidate(desc, a.mid)
	if err != nil {
		return err
	}
	if c.component != component {
		return xerrors.Errorf("ice: add remote candidate: %w: candidate component %d != %d", ErrInvalidArgument, c.component, component)
	}

	cs := a.ensureComponent(component)
	a.addRemoteCandidate(cs, c)
	return nil
}

func (a *Agent) addLocalCandidate(cs *componentState, c Candidate) {
	cs.candMu.Lock()
	cs.localCandidates = append(cs.localCandidates, c)
	remotes := append([]Candidate(nil), cs.remoteCandidates...)
	cs.candMu.Unlock()

	cs.checklist.addCandidatePairs([]Candidate{c}, remotes)
}

func (a *Agent) addRemoteCandidate(cs *componentState, c Candidate) {
	cs.candMu.Lock()
	cs.remoteCandidates = append(cs.remoteCandidates, c)
	locals := append([]Candidate(nil), cs.localCandidates...)
	cs.candMu.Unlock()

	cs.checklist.addCandidatePairs(locals, []Candidate{c})
}

// ConnCheckStart begins connectivity checks on every component that has
// been touched by AddLocalCandidate/AddRemoteCandidate/
// GatherLocalCandidates so far. It returns an error if no component has
// been set up yet.
func (a *Agent) ConnCheckStart(ctx context.Context) error {
	a.compMu.Lock()
	defer a.compMu.Unlock()

	if len(a.components) == 0 {
		return xerrors.Errorf("ice: conn check start: %w", ErrInvalidArgument)
	}

	a.ctx = ctx
	for _, cs := range a.components {
		cs.checklist.run(ctx)
	}
	return nil
}

// SelectedLocalCandidate returns the local half of the selected candidate
// pair for compID, if connectivity checks for that component have
// concluded successfully.
func (a *Agent) SelectedLocalCandidate(compID int) (*Candidate, bool) {
	cs := a.component(compID)
	if cs == nil {
		return nil, false
	}
	cs.checklist.mutex.Lock()
	p := cs.checklist.selected
	cs.checklist.mutex.Unlock()
	if p == nil {
		return nil, false
	}
	c := p.local
	return &c, true
}

// SelectedRemoteCandidate returns the remote half of the selected
// candidate pair for compID.
func (a *Agent) SelectedRemoteCandidate(compID int) (*Candidate, bool) {
	cs := a.component(compID)
	if cs == nil {
		return nil, false
	}
	cs.checklist.mutex.Lock()
	p := cs.checklist.selected
	cs.checklist.mutex.Unlock()
	if p == nil {
		return nil, false
	}
	c := p.remote
	return &c, true
}

// SelectedLocalAddr returns the net.Addr of the selected pair's local
// base for compID, suitable for use as the source address of outbound
// traffic on that component.
func (a *Agent) SelectedLocalAddr(compID int) (net.Addr, bool) {
	c, ok := a.SelectedLocalCandidate(compID)
	if !ok {
		return nil, false
	}
	return c.address.netAddr(), true
}

// Conn returns a net.Conn reading/writing on compID's selected candidate
// pair, available once onCheckComplete has reported success for it.
func (a *Agent) Conn(compID int) (net.Conn, bool) {
	cs := a.component(compID)
	if cs == nil {
		return nil, false
	}
	cs.candMu.Lock()
	defer cs.candMu.Unlock()
	if cs.conn == nil {
		return nil, false
	}
	return cs.conn, true
}

func (a *Agent) runBase(cs *componentState, base *Base) {
	base.readLoop(func(msg *stun.Message, raddr net.Addr, b *Base) {
		a.handleStun(cs, msg, raddr, b)
	}, cs.dataIn)
}

func (a *Agent) handleStun(cs *componentState, msg *stun.Message, raddr net.Addr, base *Base) {
	switch msg.Class {
	case stun.ClassRequest:
		cs.checklist.handleStunRequest(msg, raddr, base)
	case stun.ClassIndication:
		// No-op (e.g. keepalive binding indications).
	default:
		log.Debug("Received unexpected STUN response for untracked transaction: %s\n", msg)
	}
}

// onChecklistComplete is called by a component's Checklist once it
// reaches checklistCompleted or checklistFailed. On success, it wires up
// the ChannelConn for that component's selected pair; either way, it
// counts toward the overall onCheckComplete callback.
func (a *Agent) onChecklistComplete(component int, selected *CandidatePair, err error) {
	cs := a.component(component)
	if cs == nil {
		return
	}

	if err == nil && selected != nil {
		cs.selectedOnce.Do(func() {
			log.Info("Component %d selected pair: %s", component, selected)
			raddr := selected.remote.address.netAddr()
			conn := newChannelConn(selected.local.base, cs.dataIn, raddr)
			cs.candMu.Lock()
			cs.conn = conn
			cs.candMu.Unlock()
		})
	}

	a.compMu.Lock()
	a.remaining--
	if err != nil && a.firstErr == nil {
		a.firstErr = err
	}
	remaining, firstErr := a.remaining, a.firstErr
	a.compMu.Unlock()

	if remaining <= 0 {
		a.doneOnce.Do(func() {
			if a.onCheckComplete != nil {
				role, _ := a.roleAndTiebreaker()
				a.onCheckComplete(role, firstErr)
			}
		})
	}
}
