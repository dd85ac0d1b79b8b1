// Package validation verifies signed event receipts, journal hash chains and
// Nitro attestations over the journal head.
package validation

import "github.com/cloudx-io/nftauction/core"

// BaseValidationResult contains the attestation checks shared by every document.
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// HeadValidationResult contains validation results for a journal head attestation.
type HeadValidationResult struct {
	BaseValidationResult
	HeadMatch       bool
	ReceiptKeyMatch bool
}

// IsValid returns true if all head attestation checks passed
func (r *HeadValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.HeadMatch && r.ReceiptKeyMatch
}

// ReceiptValidationResult contains validation results for one event receipt.
type ReceiptValidationResult struct {
	SignatureValid    bool
	KeyIDMatch        bool
	HashValid         bool
	Event             *core.Event
	ValidationDetails []string
}

// IsValid returns true if the receipt is authentic and its event is intact
func (r *ReceiptValidationResult) IsValid() bool {
	return r.SignatureValid && r.KeyIDMatch && r.HashValid
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // repository commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
