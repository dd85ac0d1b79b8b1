package auctionapi

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// PCRs holds the Platform Configuration Registers of an AWS Nitro Enclave.
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc is the decoded form of a Nitro attestation document.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"` // base64 DER
	CABundle        []string  `json:"cabundle"`    // base64 DER, root first
	PublicKey       []byte    `json:"public_key,omitempty"`
	Nonce           []byte    `json:"nonce,omitempty"`
}

// HeadAttestationUserData is embedded in a journal head attestation. It binds
// the journal head to the key that signs event receipts.
type HeadAttestationUserData struct {
	HeadSeq    uint64    `json:"head_seq"`
	HeadHash   string    `json:"head_hash"`
	ReceiptKey string    `json:"receipt_key"` // PEM public key
	Nonce      string    `json:"nonce,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// nitroDocument is the raw CBOR payload of a Nitro attestation.
type nitroDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"`
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// ExtractCOSEPayload returns the payload of an untagged COSE_Sign1 array
// [protected, unprotected, payload, signature].
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}
	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	return payload, nil
}

// ParseAttestationDoc decodes a raw Nitro attestation and returns the
// document and its user data.
func ParseAttestationDoc(coseBytes []byte) (AttestationDoc, []byte, error) {
	payload, err := ExtractCOSEPayload(coseBytes)
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	var raw nitroDocument
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return AttestationDoc{}, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	bundle := make([]string, len(raw.CABundle))
	for i, cert := range raw.CABundle {
		bundle[i] = base64.StdEncoding.EncodeToString(cert)
	}

	doc := AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs: PCRs{
			ImageFileHash:   formatPCR(raw.PCRs[0]),
			KernelHash:      formatPCR(raw.PCRs[1]),
			ApplicationHash: formatPCR(raw.PCRs[2]),
			IAMRoleHash:     formatPCR(raw.PCRs[3]),
			InstanceIDHash:  formatPCR(raw.PCRs[4]),
			SigningCertHash: formatPCR(raw.PCRs[8]),
		},
		Certificate: base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:    bundle,
		PublicKey:   raw.PublicKey,
		Nonce:       raw.Nonce,
	}
	return doc, raw.UserData, nil
}

func formatPCR(pcr []byte) string {
	if len(pcr) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcr)
}
