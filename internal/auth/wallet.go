package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// LoginMessage is the text a wallet signs to obtain a token
const LoginMessage = "Sign this message to authenticate with the reward ledger"

var ErrInvalidSignature = errors.New("invalid signature")

// VerifyWalletSignature checks that signature is the wallet's ed25519 signature of message.
// The signature may be base58 or hex encoded.
func VerifyWalletSignature(walletAddress, signature string, message []byte) error {
	pubKey, err := base58.Decode(walletAddress)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key format")
	}

	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		sig, err = hex.DecodeString(signature)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return fmt.Errorf("invalid signature format")
		}
	}

	if !ed25519.Verify(pubKey, message, sig) {
		return ErrInvalidSignature
	}
	return nil
}
