package audit

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/core"
)

// Signer issues ES256 COSE_Sign1 receipts for journal events.
type Signer struct {
	privateKey *ecdsa.PrivateKey // Keep private - sensitive!
	signer     cose.Signer
	keyID      []byte
}

// NewSigner creates a Signer with a fresh P-256 key.
func NewSigner() (*Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return NewSignerFromKey(key)
}

// NewSignerFromKey wraps an existing P-256 key.
func NewSignerFromKey(key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("signing key must be ECDSA P-256")
	}
	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create COSE signer: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return &Signer{privateKey: key, signer: signer, keyID: sum[:8]}, nil
}

// LoadOrCreateSigner reads a PEM-encoded EC private key from path. A missing
// file is created with a fresh key; an empty path yields an ephemeral key.
func LoadOrCreateSigner(path string) (*Signer, error) {
	if path == "" {
		return NewSigner()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s, err := NewSigner()
		if err != nil {
			return nil, err
		}
		if err := s.writeKey(path); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	return NewSignerFromKey(key)
}

func (s *Signer) writeKey(path string) error {
	der, err := x509.MarshalECPrivateKey(s.privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal signing key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write signing key: %w", err)
	}
	return nil
}

// KeyID returns the hex key identifier carried in every receipt.
func (s *Signer) KeyID() string {
	return hex.EncodeToString(s.keyID)
}

// PublicKeyPEM returns the verification key in PEM format.
func (s *Signer) PublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(&s.privateKey.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: derBytes})), nil
}

// Sign returns a receipt over e.
func (s *Signer) Sign(e core.Event) (auctionapi.ReceiptCOSE, error) {
	payload, err := NewReceiptPayload(e).Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt payload: %w", err)
	}

	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: cose.AlgorithmES256,
		},
		Unprotected: cose.UnprotectedHeader{
			cose.HeaderLabelKeyID: s.keyID,
		},
	}
	receipt, err := cose.Sign1(rand.Reader, s.signer, headers, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sign receipt for event %d: %w", e.Seq, err)
	}
	return auctionapi.ReceiptCOSE(receipt), nil
}
