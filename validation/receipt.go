package validation

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/audit"
	"github.com/cloudx-io/nftauction/core"
)

// ParseReceiptKey parses a PEM-encoded P-256 receipt verification key and
// returns it with its key identifier.
func ParseReceiptKey(publicKeyPEM string) (*ecdsa.PublicKey, string, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, "", fmt.Errorf("no PEM block in public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, "", fmt.Errorf("parse public key: %w", err)
	}
	ecKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, "", fmt.Errorf("public key is not ECDSA")
	}
	sum := sha256.Sum256(block.Bytes)
	return ecKey, hex.EncodeToString(sum[:8]), nil
}

// VerifyReceipt checks a receipt's signature against publicKeyPEM and
// recomputes the hash of the event it carries.
//
// Returns:
//   - ReceiptValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (malformed receipt or key)
func VerifyReceipt(receipt auctionapi.ReceiptCOSE, publicKeyPEM string) (*ReceiptValidationResult, error) {
	key, keyID, err := ParseReceiptKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(receipt); err != nil {
		return nil, fmt.Errorf("parse COSE_Sign1: %w", err)
	}

	result := &ReceiptValidationResult{ValidationDetails: []string{}}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("COSE signature verification failed: %v", err))
	} else {
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "COSE signature verified")
	}

	kid, _ := msg.Headers.Unprotected[cose.HeaderLabelKeyID].([]byte)
	if hex.EncodeToString(kid) == keyID {
		result.KeyIDMatch = true
	} else {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Key ID mismatch: receipt %x, key %s", kid, keyID))
	}

	payload, err := audit.UnmarshalReceiptPayload(msg.Payload)
	if err != nil {
		return nil, err
	}
	event, err := payload.Event()
	if err != nil {
		return nil, fmt.Errorf("decode receipt event: %w", err)
	}
	result.Event = &event

	if computed := core.ComputeEventHash(event); computed == event.Hash {
		result.HashValid = true
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Event %d hash verified", event.Seq))
	} else {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Event %d hash mismatch: recorded %s, computed %s", event.Seq, event.Hash, computed))
	}

	return result, nil
}

// ValidateChain checks that events are consecutive and hash-linked. A chain
// starting at sequence 1 must be anchored at the genesis hash.
func ValidateChain(events []core.Event) error {
	if len(events) == 0 {
		return nil
	}
	first := events[0]
	if first.Seq == 0 {
		return fmt.Errorf("event %s: sequence numbers start at 1", first.ID)
	}
	if first.Seq == 1 && first.PrevHash != core.GenesisHash {
		return fmt.Errorf("event 1: prev hash %s is not the genesis hash", first.PrevHash)
	}
	return core.VerifyEventChain(first.Seq-1, first.PrevHash, events)
}

// VerifyEnvelopes checks the receipt of every envelope against the event it
// accompanies, then validates the chain. It returns one result per envelope.
func VerifyEnvelopes(envelopes []auctionapi.EventEnvelope, publicKeyPEM string) ([]*ReceiptValidationResult, error) {
	results := make([]*ReceiptValidationResult, 0, len(envelopes))
	events := make([]core.Event, 0, len(envelopes))

	for _, env := range envelopes {
		if env.Receipt == "" {
			return nil, fmt.Errorf("event %d has no receipt", env.Event.Seq)
		}
		raw, err := env.Receipt.Decode()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", env.Event.Seq, err)
		}
		result, err := VerifyReceipt(raw, publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", env.Event.Seq, err)
		}
		if result.Event.Hash != env.Event.Hash {
			result.HashValid = false
			result.ValidationDetails = append(result.ValidationDetails,
				fmt.Sprintf("Receipt covers hash %s, envelope carries %s", result.Event.Hash, env.Event.Hash))
		}
		results = append(results, result)
		events = append(events, *result.Event)
	}

	if err := ValidateChain(events); err != nil {
		return results, fmt.Errorf("chain: %w", err)
	}
	return results, nil
}
