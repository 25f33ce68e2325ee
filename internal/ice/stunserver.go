package ice

import (
	"net"

	"github.com/lanikai/srtpice/internal/stun"
)

// handleStunRequest implements the inbound side of connectivity checks
// (RFC 8445 §7.3), grounded on original_source's icem_stund_recv /
// handle_stun_full (spec.md §4.10's 9-step algorithm).
func (cl *Checklist) handleStunRequest(req *stun.Message, raddr net.Addr, base *Base) {
	// Step 1 (FINGERPRINT) is checked by the caller before dispatch, since a
	// FINGERPRINT mismatch means this isn't a STUN message worth logging at
	// all.

	// Step 2: MESSAGE-INTEGRITY with lpwd.
	if !req.VerifyMessageIntegrity(cl.localPassword) {
		cl.sendError(req, raddr, base, 401, "Unauthorized")
		return
	}

	// Step 3: USERNAME must be lufrag:rufrag.
	if username, ok := req.Username(); !ok || username != cl.localUfrag+":"+cl.remoteUfrag {
		cl.sendError(req, raddr, base, 401, "Unauthorized")
		return
	}

	// Step 4: role conflict detection and resolution.
	peerControlling, hasControlling := req.IceControlling()
	peerControlled, hasControlled := req.IceControlled()
	var conflict, switched bool
	switch {
	case hasControlling:
		conflict, switched = cl.agent.resolveRoleConflict(Controlling, peerControlling)
	case hasControlled:
		conflict, switched = cl.agent.resolveRoleConflict(Controlled, peerControlled)
	}
	if conflict && !switched {
		cl.sendError(req, raddr, base, 487, "Role Conflict")
		return
	}

	// Step 5: PRIORITY required.
	priority, hasPriority := req.Attribute(stun.AttrPriority)
	if !hasPriority {
		cl.sendError(req, raddr, base, 400, "Bad Request")
		return
	}
	_ = priority

	// Step 6/7: resolve remote candidate by (compid, src addr), creating a
	// peer-reflexive candidate if necessary; resolve the local candidate via
	// the matching pair.
	p := cl.findPair(base, raddr)
	if p == nil {
		p = cl.adoptPeerReflexiveCandidate(base, raddr, req.Priority())
	}

	// Step 8: triggered-check semantics, and nomination.
	if req.HasUseCandidate() && !cl.agent.isControlling() && p.state == Succeeded && !p.nominated {
		log.Debug("Nominating %s\n", p.id)
		cl.nominate(p)
	}
	cl.triggerCheck(p)

	// Step 9: 2xx success response.
	resp := stun.NewBindingResponse(req.TransactionID, raddr)
	resp.AddSoftware("srtpice")
	resp.AddMessageIntegrity(cl.localPassword)
	resp.AddFingerprint()
	log.Debug("Sending response %s -> %s: %s\n", base.LocalAddr(), raddr, resp)
	if err := base.sendStun(resp, raddr, nil); err != nil {
		log.Warn("Failed to send STUN response: %s", err)
	}
}

func (cl *Checklist) sendError(req *stun.Message, raddr net.Addr, base *Base, code int, reason string) {
	resp := stun.NewBindingErrorResponse(req.TransactionID, code, reason)
	resp.AddMessageIntegrity(cl.localPassword)
	resp.AddFingerprint()
	if err := base.sendStun(resp, raddr, nil); err != nil {
		log.Warn("Failed to send STUN error response: %s", err)
	}
}
