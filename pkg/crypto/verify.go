package crypto

// Supported signature platforms.
const (
	PlatformEthereum = "Ethereum"
	PlatformAlgorand = "Algorand"
)

// VerifyIntent authenticates a trade intent: the signature must bind the
// canonical payload bytes to the claimed sender key under the platform's
// native scheme. Unknown platforms verify as false; this function never
// panics and has no side effects.
func VerifyIntent(canonical []byte, sig, senderPK, platform string) bool {
	switch platform {
	case PlatformEthereum:
		return VerifyEthereum(canonical, sig, senderPK)
	case PlatformAlgorand:
		return VerifyAlgorand(canonical, sig, senderPK)
	default:
		return false
	}
}
