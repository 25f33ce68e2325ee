package srtp

// Suite identifies an SRTP crypto suite, per RFC 3711 and RFC 7714.
type Suite int

const (
	AES_CM_128_HMAC_SHA1_80 Suite = iota
	AES_CM_128_HMAC_SHA1_32
	AES_256_CM_HMAC_SHA1_80
	AES_256_CM_HMAC_SHA1_32
	AES_128_GCM
	AES_256_GCM
)

// Mode distinguishes the confidentiality transform.
type mode int

const (
	modeCTR mode = iota
	modeGCM
)

type suiteParams struct {
	cipherBytes int
	saltBytes   int
	authTagLen  int
	mode        mode
	hmac        bool
}

var suiteTable = map[Suite]suiteParams{
	AES_CM_128_HMAC_SHA1_80: {cipherBytes: 16, saltBytes: 14, authTagLen: 10, mode: modeCTR, hmac: true},
	AES_CM_128_HMAC_SHA1_32: {cipherBytes: 16, saltBytes: 14, authTagLen: 4, mode: modeCTR, hmac: true},
	AES_256_CM_HMAC_SHA1_80: {cipherBytes: 32, saltBytes: 14, authTagLen: 10, mode: modeCTR, hmac: true},
	AES_256_CM_HMAC_SHA1_32: {cipherBytes: 32, saltBytes: 14, authTagLen: 4, mode: modeCTR, hmac: true},
	AES_128_GCM:             {cipherBytes: 16, saltBytes: 12, authTagLen: 16, mode: modeGCM, hmac: false},
	AES_256_GCM:             {cipherBytes: 32, saltBytes: 12, authTagLen: 16, mode: modeGCM, hmac: false},
}

func (s Suite) params() (suiteParams, error) {
	p, ok := suiteTable[s]
	if !ok {
		return suiteParams{}, ErrUnsupported
	}
	return p, nil
}

// KeyLen is the required length of the master key + master salt supplied to
// NewContext for this suite.
func (s Suite) KeyLen() (int, error) {
	p, err := s.params()
	if err != nil {
		return 0, err
	}
	return p.cipherBytes + p.saltBytes, nil
}

func (s Suite) String() string {
	switch s {
	case AES_CM_128_HMAC_SHA1_80:
		return "AES_CM_128_HMAC_SHA1_80"
	case AES_CM_128_HMAC_SHA1_32:
		return "AES_CM_128_HMAC_SHA1_32"
	case AES_256_CM_HMAC_SHA1_80:
		return "AES_256_CM_HMAC_SHA1_80"
	case AES_256_CM_HMAC_SHA1_32:
		return "AES_256_CM_HMAC_SHA1_32"
	case AES_128_GCM:
		return "AES_128_GCM"
	case AES_256_GCM:
		return "AES_256_GCM"
	default:
		return "unknown"
	}
}

// ParseSuite looks up a Suite by its String() name, for use by
// configuration and command-line code.
func ParseSuite(name string) (Suite, error) {
	for s := range suiteTable {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, ErrUnsupported
}

// Flags control session-wide behavior not tied to a specific suite.
type Flags struct {
	// SRTCPUnencrypted disables SRTCP payload encryption (E-bit stays 0)
	// while still authenticating the packet. SRTP is unaffected.
	SRTCPUnencrypted bool
}
