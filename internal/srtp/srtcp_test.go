package srtp

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func buildRTCPPacket(ssrc uint32, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	buf[0] = 0x80
	buf[1] = 200 // SR
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(payload)/4))
	binary.BigEndian.PutUint32(buf[4:8], ssrc)
	copy(buf[8:], payload)
	return buf
}

func TestSRTCPRoundTrip(t *testing.T) {
	for _, suite := range []Suite{
		AES_CM_128_HMAC_SHA1_80,
		AES_CM_128_HMAC_SHA1_32,
		AES_128_GCM,
	} {
		suite := suite
		t.Run(suite.String(), func(t *testing.T) {
			key := testKey(t, suite)
			enc, err := NewContext(suite, key, Flags{})
			require.NoError(t, err)
			dec, err := NewContext(suite, key, Flags{})
			require.NoError(t, err)

			pkt := buildRTCPPacket(42, []byte("senderreport!!!!"))

			protected, err := enc.EncryptRTCP(append([]byte(nil), pkt...))
			require.NoError(t, err)

			plain, err := dec.DecryptRTCP(protected)
			require.NoError(t, err)
			if diff := cmp.Diff(pkt, plain); diff != "" {
				t.Errorf("decrypted packet mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSRTCPUnencryptedStillAuthenticates(t *testing.T) {
	suite := AES_CM_128_HMAC_SHA1_80
	key := testKey(t, suite)
	flags := Flags{SRTCPUnencrypted: true}
	enc, err := NewContext(suite, key, flags)
	require.NoError(t, err)
	dec, err := NewContext(suite, key, flags)
	require.NoError(t, err)

	pkt := buildRTCPPacket(7, []byte("clearpayload!!!!"))
	protected, err := enc.EncryptRTCP(append([]byte(nil), pkt...))
	require.NoError(t, err)

	// Payload bytes should be untouched (not XOR-ed) since E bit is 0.
	require.Equal(t, pkt[8:], protected[8:len(protected)-4-10])

	plain, err := dec.DecryptRTCP(protected)
	require.NoError(t, err)
	require.Equal(t, pkt, plain)
}

func TestSRTCPUnencryptedGCMStillAuthenticates(t *testing.T) {
	suite := AES_128_GCM
	key := testKey(t, suite)
	flags := Flags{SRTCPUnencrypted: true}
	enc, err := NewContext(suite, key, flags)
	require.NoError(t, err)
	dec, err := NewContext(suite, key, flags)
	require.NoError(t, err)

	pkt := buildRTCPPacket(7, []byte("clearpayload!!!!"))
	protected, err := enc.EncryptRTCP(append([]byte(nil), pkt...))
	require.NoError(t, err)

	// Payload bytes should be untouched (not sealed) since E bit is 0; only
	// a trailing GCM tag and the E-bit/index trailer are appended.
	require.Equal(t, pkt[8:], protected[8:len(protected)-4-16])

	plain, err := dec.DecryptRTCP(protected)
	require.NoError(t, err)
	require.Equal(t, pkt, plain)

	protected[len(protected)-5] ^= 0xff
	_, err = dec.DecryptRTCP(protected)
	require.ErrorIs(t, err, ErrAuth)
}

func TestSRTCPReplayRejected(t *testing.T) {
	suite := AES_CM_128_HMAC_SHA1_80
	key := testKey(t, suite)
	enc, err := NewContext(suite, key, Flags{})
	require.NoError(t, err)
	dec, err := NewContext(suite, key, Flags{})
	require.NoError(t, err)

	pkt := buildRTCPPacket(1, []byte("aaaaaaaaaaaaaaaa"))
	protected, err := enc.EncryptRTCP(append([]byte(nil), pkt...))
	require.NoError(t, err)

	_, err = dec.DecryptRTCP(append([]byte(nil), protected...))
	require.NoError(t, err)
	_, err = dec.DecryptRTCP(append([]byte(nil), protected...))
	require.ErrorIs(t, err, ErrReplay)
}
