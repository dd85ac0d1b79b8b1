package audit

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"

	"github.com/cloudx-io/nftauction/auctionapi"
)

// Attester produces Nitro attestation documents. *enclave.EnclaveHandle
// satisfies it inside an enclave.
type Attester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// NitroAttester returns the enclave's NSM handle.
func NitroAttester() (Attester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// HeadAttestation is an attestation over the journal head and the user data it embeds.
type HeadAttestation struct {
	Document []byte
	UserData auctionapi.HeadAttestationUserData
}

// AttestHead attests the journal head together with the receipt signing key,
// so a verifier holding the attestation can trust receipts signed by that key.
// An empty nonce is replaced by a random one.
func AttestHead(attester Attester, signer *Signer, headSeq uint64, headHash, nonce string) (*HeadAttestation, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}
	if signer == nil {
		return nil, fmt.Errorf("receipt signer is nil")
	}

	keyPEM, err := signer.PublicKeyPEM()
	if err != nil {
		return nil, err
	}
	if nonce == "" {
		if nonce, err = generateNonce(); err != nil {
			return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
		}
	}

	userData := auctionapi.HeadAttestationUserData{
		HeadSeq:    headSeq,
		HeadHash:   headHash,
		ReceiptKey: keyPEM,
		Nonce:      nonce,
		Timestamp:  time.Now().UTC(),
	}
	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user data: %w", err)
	}

	doc, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(nonce),
	})
	if err != nil {
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}
	return &HeadAttestation{Document: doc, UserData: userData}, nil
}

func generateNonce() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("entropy generation failed: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
