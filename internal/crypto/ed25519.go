package crypto

import (
	stdcrypto "crypto"
	"crypto/ed25519"
)

// SignEd25519 signs msg with priv and returns the signature.
func SignEd25519(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// VerifyEd25519 verifies sig over msg with pub. Keys of any other type are
// rejected.
func VerifyEd25519(pub stdcrypto.PublicKey, msg, sig []byte) bool {
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok || len(edPub) != ed25519.PublicKeySize {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(edPub, msg, sig)
}
