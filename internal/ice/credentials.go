package ice

import "github.com/google/uuid"

// GenerateCredentials returns a fresh (ufrag, password) pair suitable for
// use as this side's ICE credentials (RFC 8445 §5.1.1.3's ice-ufrag/
// ice-pwd). Grounded on SilvaMendes-go-rtpengine's Engine.GetCookie,
// which mints per-request correlation identifiers the same way.
func GenerateCredentials() (ufrag, password string) {
	// ice-ufrag only needs to be unique among candidates signaled for this
	// session, so a truncated UUID is plenty; ice-pwd wants more entropy
	// and gets the whole thing.
	id := uuid.NewString()
	ufrag = id[:8]
	password = uuid.NewString()
	return ufrag, password
}
