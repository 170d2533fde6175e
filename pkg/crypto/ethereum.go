package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// PersonalHash hashes a message the way eth_sign / personal_sign does:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func PersonalHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// SignEthereum signs a canonical payload with a personal-message signature.
// The returned signature is 0x-prefixed hex in [R || S || V] form with
// V in {27, 28}, matching what wallets produce.
func SignEthereum(canonical []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(PersonalHash(canonical), key)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// VerifyEthereum recovers the signer address from a personal-message
// signature over the canonical payload and compares it to senderPK.
// Any malformed input yields false, never an error.
func VerifyEthereum(canonical []byte, sigHex, senderPK string) bool {
	if !common.IsHexAddress(senderPK) {
		return false
	}

	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}

	// Normalize V: wallets emit 27/28, Ecrecover wants 0/1.
	s := make([]byte, crypto.SignatureLength)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	if s[64] > 1 {
		return false
	}

	pub, err := crypto.SigToPub(PersonalHash(canonical), s)
	if err != nil {
		return false
	}

	return crypto.PubkeyToAddress(*pub) == common.HexToAddress(senderPK)
}
