package handshake

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"portfwd/internal/crypto"
	"portfwd/internal/protocol/sessioncipher"
)

// Domain separation labels. Every signature, MAC and AEAD input in the
// handshake starts with one of these.
const (
	labelServerHello     = "portfwd/v1 server hello"
	labelForwardRequest  = "portfwd/v1 forward request"
	labelForwardResponse = "portfwd/v1 forward response"
	labelKeyWrap         = "portfwd/v1 key wrap"
	labelClientFinished  = "portfwd/v1 client finished"
	labelServerFinished  = "portfwd/v1 server finished"

	infoRequestKey    = "portfwd/v1 client auth"
	infoWrapKey       = "portfwd/v1 kek"
	infoSessionKey    = "portfwd/v1 session key"
	infoClientConfirm = "portfwd/v1 client confirm"
	infoServerConfirm = "portfwd/v1 server confirm"
	infoSessionID     = "portfwd/v1 session id"

	keyMaterialLength = 32
)

// bound concatenates a label, a transcript digest and a message body.
func bound(label string, th, body []byte) []byte {
	out := make([]byte, 0, len(label)+len(th)+len(body))
	out = append(out, label...)
	out = append(out, th...)
	return append(out, body...)
}

// clientKeys are derived from the key-wrap secret shared between one client
// and the server, salted with the client certificate.
type clientKeys struct {
	request []byte
	wrap    []byte
}

func deriveClientKeys(secret []byte, cert *x509.Certificate) (clientKeys, error) {
	salt := sha256.Sum256(cert.Raw)
	req, err := crypto.DeriveKey(secret, salt[:], infoRequestKey, crypto.KeyBytes)
	if err != nil {
		return clientKeys{}, err
	}
	kek, err := crypto.DeriveKey(secret, salt[:], infoWrapKey, crypto.KeyBytes)
	if err != nil {
		crypto.Wipe(req)
		return clientKeys{}, err
	}
	return clientKeys{request: req, wrap: kek}, nil
}

func (k clientKeys) wipe() {
	crypto.Wipe(k.request)
	crypto.Wipe(k.wrap)
}

// schedule is everything derived once both the ephemeral agreement and the
// wrapped key material are known.
type schedule struct {
	session       []byte
	clientConfirm []byte
	serverConfirm []byte
	id            [32]byte
}

func deriveSchedule(shared [32]byte, keyMaterial, th []byte) (schedule, error) {
	if len(keyMaterial) != keyMaterialLength {
		return schedule{}, fmt.Errorf("key material must be %d bytes, got %d", keyMaterialLength, len(keyMaterial))
	}
	ikm := make([]byte, 0, len(shared)+len(keyMaterial))
	ikm = append(ikm, shared[:]...)
	ikm = append(ikm, keyMaterial...)
	defer crypto.Wipe(ikm)

	var s schedule
	var err error
	if s.session, err = crypto.DeriveKey(ikm, th, infoSessionKey, sessioncipher.KeySize); err != nil {
		return schedule{}, err
	}
	if s.clientConfirm, err = crypto.DeriveKey(ikm, th, infoClientConfirm, sha256.Size); err != nil {
		s.wipe()
		return schedule{}, err
	}
	if s.serverConfirm, err = crypto.DeriveKey(ikm, th, infoServerConfirm, sha256.Size); err != nil {
		s.wipe()
		return schedule{}, err
	}
	id, err := crypto.DeriveKey(ikm, th, infoSessionID, len(s.id))
	if err != nil {
		s.wipe()
		return schedule{}, err
	}
	copy(s.id[:], id)
	return s, nil
}

func (s schedule) wipe() {
	crypto.Wipe(s.session)
	crypto.Wipe(s.clientConfirm)
	crypto.Wipe(s.serverConfirm)
}

func confirm(key []byte, label string, th []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write([]byte(label))
	m.Write(th)
	return m.Sum(nil)
}
