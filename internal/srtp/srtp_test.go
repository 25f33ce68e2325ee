package srtp

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, suite Suite) []byte {
	t.Helper()
	n, err := suite.KeyLen()
	require.NoError(t, err)
	key := make([]byte, n)
	_, err = rand.Read(key)
	require.NoError(t, err)
	return key
}

func buildRTPPacket(seq uint16, ssrc uint32, payload []byte) []byte {
	buf := make([]byte, 12+len(payload))
	buf[0] = 0x80 // version 2, no padding/extension/CSRC
	buf[1] = 96   // payload type
	buf[2] = byte(seq >> 8)
	buf[3] = byte(seq)
	buf[8] = byte(ssrc >> 24)
	buf[9] = byte(ssrc >> 16)
	buf[10] = byte(ssrc >> 8)
	buf[11] = byte(ssrc)
	copy(buf[12:], payload)
	return buf
}

func TestSRTPRoundTrip(t *testing.T) {
	for _, suite := range []Suite{
		AES_CM_128_HMAC_SHA1_80,
		AES_CM_128_HMAC_SHA1_32,
		AES_256_CM_HMAC_SHA1_80,
		AES_256_CM_HMAC_SHA1_32,
		AES_128_GCM,
		AES_256_GCM,
	} {
		suite := suite
		t.Run(suite.String(), func(t *testing.T) {
			key := testKey(t, suite)
			enc, err := NewContext(suite, key, Flags{})
			require.NoError(t, err)
			dec, err := NewContext(suite, key, Flags{})
			require.NoError(t, err)

			payload := []byte("the quick brown fox jumps over the lazy dog")
			pkt := buildRTPPacket(1, 0xdeadbeef, payload)

			protected, err := enc.EncryptRTP(append([]byte(nil), pkt...))
			require.NoError(t, err)
			require.NotEqual(t, pkt, protected)

			plain, err := dec.DecryptRTP(append([]byte(nil), protected...))
			require.NoError(t, err)
			if diff := cmp.Diff(pkt, plain); diff != "" {
				t.Errorf("decrypted packet mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSRTPDecryptRejectsTamperedTag(t *testing.T) {
	suite := AES_CM_128_HMAC_SHA1_80
	key := testKey(t, suite)
	ctx, err := NewContext(suite, key, Flags{})
	require.NoError(t, err)

	pkt := buildRTPPacket(1, 1, []byte("payload"))
	protected, err := ctx.EncryptRTP(append([]byte(nil), pkt...))
	require.NoError(t, err)

	protected[len(protected)-1] ^= 0xff

	dec, err := NewContext(suite, key, Flags{})
	require.NoError(t, err)
	_, err = dec.DecryptRTP(protected)
	require.ErrorIs(t, err, ErrAuth)
}

func TestSRTPReplayRejected(t *testing.T) {
	suite := AES_CM_128_HMAC_SHA1_80
	key := testKey(t, suite)
	enc, err := NewContext(suite, key, Flags{})
	require.NoError(t, err)
	dec, err := NewContext(suite, key, Flags{})
	require.NoError(t, err)

	pkt := buildRTPPacket(1, 1, []byte("payload"))
	protected, err := enc.EncryptRTP(append([]byte(nil), pkt...))
	require.NoError(t, err)

	_, err = dec.DecryptRTP(append([]byte(nil), protected...))
	require.NoError(t, err)

	_, err = dec.DecryptRTP(append([]byte(nil), protected...))
	require.ErrorIs(t, err, ErrReplay)
}

func TestSRTPROCIncrementsOnWraparound(t *testing.T) {
	suite := AES_CM_128_HMAC_SHA1_80
	key := testKey(t, suite)
	enc, err := NewContext(suite, key, Flags{})
	require.NoError(t, err)

	pkt := buildRTPPacket(65535, 1, []byte("a"))
	_, err = enc.EncryptRTP(pkt)
	require.NoError(t, err)

	s := enc.getStream(1)
	require.Equal(t, uint32(0), s.roc)

	pkt2 := buildRTPPacket(2, 1, []byte("b")) // wraps past 0
	_, err = enc.EncryptRTP(pkt2)
	require.NoError(t, err)
	require.Equal(t, uint32(1), s.roc)
}

func TestBuildRTPPacketSanity(t *testing.T) {
	p := buildRTPPacket(7, 9, []byte("x"))
	if !bytes.Equal(p[12:], []byte("x")) {
		t.Fatal("payload mismatch")
	}
}
