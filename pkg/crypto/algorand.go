package crypto

import (
	"bytes"
	"crypto/sha512"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
)

// Algorand addresses are the 32-byte ed25519 public key plus a 4-byte
// SHA-512/256 checksum, base32-encoded without padding.
const algorandChecksumLen = 4

var algorandBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// algorandSigPrefix is prepended to arbitrary bytes before signing,
// domain-separating them from real Algorand transactions.
var algorandSigPrefix = []byte("MX")

var errBadAddress = errors.New("malformed algorand address")

// EncodeAlgorandAddress derives the checksummed address for a public key.
func EncodeAlgorandAddress(pk ed25519.PublicKey) string {
	sum := sha512.Sum512_256(pk)
	raw := make([]byte, 0, ed25519.PublicKeySize+algorandChecksumLen)
	raw = append(raw, pk...)
	raw = append(raw, sum[len(sum)-algorandChecksumLen:]...)
	return algorandBase32.EncodeToString(raw)
}

// DecodeAlgorandAddress recovers and checksum-validates the public key
// embedded in an address.
func DecodeAlgorandAddress(addr string) (ed25519.PublicKey, error) {
	raw, err := algorandBase32.DecodeString(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadAddress, err)
	}
	if len(raw) != ed25519.PublicKeySize+algorandChecksumLen {
		return nil, errBadAddress
	}

	pk := raw[:ed25519.PublicKeySize]
	sum := sha512.Sum512_256(pk)
	if !bytes.Equal(raw[ed25519.PublicKeySize:], sum[len(sum)-algorandChecksumLen:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", errBadAddress)
	}
	return ed25519.PublicKey(pk), nil
}

// SignAlgorand signs a canonical payload with the "MX"-prefixed byte
// signing convention and returns the signature base64-encoded.
func SignAlgorand(canonical []byte, key ed25519.PrivateKey) string {
	msg := append(append([]byte{}, algorandSigPrefix...), canonical...)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(key, msg))
}

// VerifyAlgorand checks a base64 signature over the canonical payload
// against the sender's address. Malformed input yields false.
func VerifyAlgorand(canonical []byte, sigB64, senderPK string) bool {
	pk, err := DecodeAlgorandAddress(senderPK)
	if err != nil {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	msg := append(append([]byte{}, algorandSigPrefix...), canonical...)
	return ed25519.Verify(pk, msg, sig)
}
