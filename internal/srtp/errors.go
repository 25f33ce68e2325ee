package srtp

import "errors"

// Sentinel errors matching the spec's error taxonomy. Call sites wrap these
// with xerrors.Errorf("...: %w", err) so errors.Is still matches.
var (
	ErrBadMessage  = errors.New("srtp: malformed packet")
	ErrAuth        = errors.New("srtp: authentication tag mismatch")
	ErrReplay      = errors.New("srtp: packet already seen")
	ErrTimeout     = errors.New("srtp: sequence number too old")
	ErrBadKeyLen   = errors.New("srtp: master key/salt has wrong length for suite")
	ErrUnsupported = errors.New("srtp: unsupported crypto suite")
)
