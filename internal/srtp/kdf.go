package srtp

import (
	"crypto/aes"
	"crypto/cipher"
)

// SRTP/SRTCP key derivation labels, RFC 3711 §4.3.2. SRTCP reuses the same
// labels shifted by +3.
const (
	labelSRTPEncryption byte = 0x00
	labelSRTPAuth       byte = 0x01
	labelSRTPSalt       byte = 0x02
	labelSRTCPEncrypt   byte = 0x03
	labelSRTCPAuth      byte = 0x04
	labelSRTCPSalt      byte = 0x05
)

// deriveKey implements the SRTP KDF (RFC 3711 §4.3.1): form a 14-byte IV by
// XORing the master salt with the label placed at byte offset 7, then run
// AES-CTR (key = masterKey, that IV as the initial counter) as a keystream
// generator, taking the first n bytes.
func deriveKey(masterKey, masterSalt []byte, label byte, n int) ([]byte, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, 16)
	copy(iv, masterSalt)
	iv[7] ^= label

	out := make([]byte, n)
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(out, out)
	return out, nil
}
