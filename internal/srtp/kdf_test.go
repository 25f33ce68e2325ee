package srtp

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func checkHex(t *testing.T, got []byte, wantHex string) {
	t.Helper()
	want, err := hex.DecodeString(wantHex)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// RFC 3711 Appendix B.3 key derivation test vectors.
func TestDeriveKey(t *testing.T) {
	masterKey, err := hex.DecodeString("E1F97A0D3E018BE0D64FA32C06DE4139")
	require.NoError(t, err)
	masterSalt, err := hex.DecodeString("0EC675AD498AFEEBB6960B3AABE6")
	require.NoError(t, err)

	encKey, err := deriveKey(masterKey, masterSalt, labelSRTPEncryption, 16)
	require.NoError(t, err)
	checkHex(t, encKey, "C61E7A93744F39EE10734AFE3FF7A087")

	authKey, err := deriveKey(masterKey, masterSalt, labelSRTPAuth, authKeyLength)
	require.NoError(t, err)
	checkHex(t, authKey, "CEBE321F6FF7716B6FD4AB49AF256A156D38BAA4")

	saltKey, err := deriveKey(masterKey, masterSalt, labelSRTPSalt, 14)
	require.NoError(t, err)
	checkHex(t, saltKey, "30CBBC08863D8C85D49DB34A9AE1")
}

func TestDeriveKeyBadMasterKey(t *testing.T) {
	_, err := deriveKey([]byte{0x01}, make([]byte, 14), labelSRTPEncryption, 16)
	require.Error(t, err)
}
