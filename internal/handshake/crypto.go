package handshake

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"hash"
	"io"
)

func newSHA256() hash.Hash {
	return sha256.New()
}

const challengeSize = 32

func generateChallenge() ([]byte, error) {
	nonce := make([]byte, challengeSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

// proofMessage is what the client signs to prove possession of its
// long-term identity key: the server's challenge concatenated with the
// shared secret, binding the signature to this specific session.
func proofMessage(challenge []byte, sharedSecret [32]byte) []byte {
	msg := make([]byte, 0, len(challenge)+len(sharedSecret))
	msg = append(msg, challenge...)
	msg = append(msg, sharedSecret[:]...)
	return msg
}

func sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

func verify(pub ed25519.PublicKey, message, sig []byte) bool {
	return ed25519.Verify(pub, message, sig)
}
