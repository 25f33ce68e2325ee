// Package srtp implements SRTP and SRTCP packet protection (RFC 3711,
// RFC 5506, RFC 7714), grounded on the reactor's packet-buffer transform
// style and generalized to the full crypto suite table, replay protection,
// and SRTCP support the original only stubbed out.
package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"sync"

	"golang.org/x/xerrors"
)

// component holds the derived session key material for one direction (RTP
// side or RTCP side) of a Context, per spec §3's Component.
type component struct {
	block   cipher.Block
	gcm     cipher.AEAD
	salt    []byte
	authKey []byte
	tagLen  int
}

func newComponent(masterKey, masterSalt []byte, p suiteParams, encLabel, authLabel, saltLabel byte) (component, error) {
	encKey, err := deriveKey(masterKey, masterSalt, encLabel, p.cipherBytes)
	if err != nil {
		return component{}, xerrors.Errorf("derive encryption key: %w", err)
	}
	salt, err := deriveKey(masterKey, masterSalt, saltLabel, p.saltBytes)
	if err != nil {
		return component{}, xerrors.Errorf("derive salt: %w", err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return component{}, xerrors.Errorf("aes.NewCipher: %w", err)
	}

	c := component{block: block, salt: salt, tagLen: p.authTagLen}

	switch p.mode {
	case modeGCM:
		gcm, err := cipher.NewGCMWithNonceSize(block, p.saltBytes)
		if err != nil {
			return component{}, xerrors.Errorf("cipher.NewGCM: %w", err)
		}
		c.gcm = gcm
	case modeCTR:
		if p.hmac {
			authKey, err := deriveKey(masterKey, masterSalt, authLabel, authKeyLength)
			if err != nil {
				return component{}, xerrors.Errorf("derive auth key: %w", err)
			}
			c.authKey = authKey
		}
	}

	return c, nil
}

const authKeyLength = 20 // HMAC-SHA1 key size used throughout RFC 3711

// Context is an SRTP/SRTCP session: two Components (RTP, RTCP side) sharing
// one master key, plus the per-SSRC Streams created as traffic arrives.
// A Context is not safe for concurrent encrypt/decrypt calls (spec §5);
// the stream map itself is mutex-protected only to guard lazy creation.
type Context struct {
	suite  Suite
	params suiteParams
	flags  Flags

	rtp  component
	rtcp component

	mu      sync.Mutex
	streams map[uint32]*Stream
}

// NewContext allocates an SRTP session for the given suite and master
// key||salt blob, deriving session keys for both the RTP and RTCP
// components up front. Failure to derive any key is fatal to allocation,
// matching comp_init's all-or-nothing semantics in the original.
func NewContext(suite Suite, key []byte, flags Flags) (*Context, error) {
	params, err := suite.params()
	if err != nil {
		return nil, err
	}

	want := params.cipherBytes + params.saltBytes
	if len(key) != want {
		return nil, ErrBadKeyLen
	}
	masterKey := key[:params.cipherBytes]
	masterSalt := key[params.cipherBytes:]

	rtp, err := newComponent(masterKey, masterSalt, params, labelSRTPEncryption, labelSRTPAuth, labelSRTPSalt)
	if err != nil {
		return nil, xerrors.Errorf("srtp component: %w", err)
	}
	rtcp, err := newComponent(masterKey, masterSalt, params, labelSRTCPEncrypt, labelSRTCPAuth, labelSRTCPSalt)
	if err != nil {
		return nil, xerrors.Errorf("srtcp component: %w", err)
	}

	return &Context{
		suite:   suite,
		params:  params,
		flags:   flags,
		rtp:     rtp,
		rtcp:    rtcp,
		streams: make(map[uint32]*Stream),
	}, nil
}

// counterIV builds the 16-byte AES-CTR initial counter for SRTP/SRTCP (RFC
// 3711 §4.1.1): the component salt, zero-padded to 16 bytes, XORed with
// (ssrc at byte 4, 48-bit index at byte 8).
func counterIV(salt []byte, ssrc uint32, index uint64) []byte {
	iv := make([]byte, 16)
	copy(iv, salt)
	iv[4] ^= byte(ssrc >> 24)
	iv[5] ^= byte(ssrc >> 16)
	iv[6] ^= byte(ssrc >> 8)
	iv[7] ^= byte(ssrc)
	iv[8] ^= byte(index >> 40)
	iv[9] ^= byte(index >> 32)
	iv[10] ^= byte(index >> 24)
	iv[11] ^= byte(index >> 16)
	iv[12] ^= byte(index >> 8)
	iv[13] ^= byte(index)
	return iv
}

// gcmIV builds the 12-byte AEAD nonce for AES-GCM SRTP/SRTCP (RFC 7714
// §8.1): the component salt XORed with (ssrc at byte 2, 48-bit index at
// byte 6).
func gcmIV(salt []byte, ssrc uint32, index uint64) []byte {
	iv := make([]byte, 12)
	copy(iv, salt)
	iv[2] ^= byte(ssrc >> 24)
	iv[3] ^= byte(ssrc >> 16)
	iv[4] ^= byte(ssrc >> 8)
	iv[5] ^= byte(ssrc)
	iv[6] ^= byte(index >> 40)
	iv[7] ^= byte(index >> 32)
	iv[8] ^= byte(index >> 24)
	iv[9] ^= byte(index >> 16)
	iv[10] ^= byte(index >> 8)
	iv[11] ^= byte(index)
	return iv
}

func newCTRStream(block cipher.Block, iv []byte) cipher.Stream {
	return cipher.NewCTR(block, iv)
}

func newHMAC(key []byte) hmacFunc {
	return func(data []byte) []byte {
		h := hmac.New(sha1.New, key)
		h.Write(data)
		return h.Sum(nil)
	}
}

type hmacFunc func(data []byte) []byte
