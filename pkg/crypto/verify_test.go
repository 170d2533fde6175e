package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/cloudflare/circl/sign/ed25519"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var samplePayload = []byte(`{"sender_pk":"x","buy_currency":"ETH","sell_currency":"ALGO","buy_amount":100,"sell_amount":100,"platform":"Ethereum","receiver_pk":"y","tx_id":"t"}`)

func TestCanonicalJSON_KeyOrderIndependent(t *testing.T) {
	a, err := CanonicalJSON([]byte(`{"b": 1, "a": "x", "c": {"z": 2, "y": 3}}`))
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	b, err := CanonicalJSON([]byte(`{"c": {"y": 3, "z": 2}, "a": "x", "b": 1}`))
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("canonical forms differ: %s vs %s", a, b)
	}
}

func TestCanonicalJSON_PreservesNumbers(t *testing.T) {
	out, err := CanonicalJSON([]byte(`{"amount": 10.25}`))
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	want := `{"amount":10.25}`
	if string(out) != want {
		t.Errorf("canonical = %s, want %s", out, want)
	}
}

func TestVerifyEthereum_RoundTrip(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sender := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	canonical, err := CanonicalJSON(samplePayload)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	sig, err := SignEthereum(canonical, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if !VerifyEthereum(canonical, sig, sender) {
		t.Error("valid signature rejected")
	}

	// Altered payload must fail.
	tampered := append(append([]byte{}, canonical...), ' ')
	if VerifyEthereum(tampered, sig, sender) {
		t.Error("tampered payload accepted")
	}

	// Altered signature byte must fail.
	badSig := []byte(sig)
	badSig[10] ^= 'a'
	if VerifyEthereum(canonical, string(badSig), sender) {
		t.Error("tampered signature accepted")
	}

	// Wrong sender must fail.
	other, _ := ethcrypto.GenerateKey()
	otherAddr := ethcrypto.PubkeyToAddress(other.PublicKey).Hex()
	if VerifyEthereum(canonical, sig, otherAddr) {
		t.Error("signature accepted for wrong sender")
	}
}

func TestVerifyEthereum_MalformedInputs(t *testing.T) {
	tests := []struct {
		name   string
		sig    string
		sender string
	}{
		{"empty signature", "", "0x0000000000000000000000000000000000000001"},
		{"not hex", "zzzz", "0x0000000000000000000000000000000000000001"},
		{"short signature", "0x1234", "0x0000000000000000000000000000000000000001"},
		{"bad sender", "0x" + string(make([]byte, 130)), "not-an-address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifyEthereum(samplePayload, tt.sig, tt.sender) {
				t.Error("malformed input verified")
			}
		})
	}
}

func TestAlgorandAddress_RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	addr := EncodeAlgorandAddress(pub)
	decoded, err := DecodeAlgorandAddress(addr)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if !bytes.Equal(decoded, pub) {
		t.Error("decoded key differs from original")
	}

	// Corrupt the checksum.
	corrupt := []byte(addr)
	if corrupt[0] == 'A' {
		corrupt[0] = 'B'
	} else {
		corrupt[0] = 'A'
	}
	if _, err := DecodeAlgorandAddress(string(corrupt)); err == nil {
		t.Error("corrupted address decoded without error")
	}
}

func TestVerifyAlgorand_RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sender := EncodeAlgorandAddress(pub)

	canonical, err := CanonicalJSON(samplePayload)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	sig := SignAlgorand(canonical, priv)

	if !VerifyAlgorand(canonical, sig, sender) {
		t.Error("valid signature rejected")
	}

	tampered := append(append([]byte{}, canonical...), ' ')
	if VerifyAlgorand(tampered, sig, sender) {
		t.Error("tampered payload accepted")
	}

	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	if VerifyAlgorand(canonical, sig, EncodeAlgorandAddress(otherPub)) {
		t.Error("signature accepted for wrong sender")
	}

	if VerifyAlgorand(canonical, "!!!not-base64!!!", sender) {
		t.Error("malformed signature accepted")
	}
}

func TestVerifyIntent_PlatformDispatch(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	sender := EncodeAlgorandAddress(pub)
	canonical, _ := CanonicalJSON(samplePayload)
	sig := SignAlgorand(canonical, priv)

	if !VerifyIntent(canonical, sig, sender, PlatformAlgorand) {
		t.Error("algorand intent rejected")
	}
	if VerifyIntent(canonical, sig, sender, PlatformEthereum) {
		t.Error("algorand signature accepted under ethereum scheme")
	}
	if VerifyIntent(canonical, sig, sender, "Bitcoin") {
		t.Error("unknown platform accepted")
	}
}
