package audit

import (
	"fmt"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
)

// MockAttester stands in for the NSM outside an enclave. Its documents have
// the Nitro layout but carry placeholder certificates and signatures.
type MockAttester struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
	PCRs       map[uint64][]byte
}

// Attest implements Attester.
func (m *MockAttester) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}

	nestedDoc := map[string]any{
		"module_id":   "mock-enclave",
		"digest":      "SHA384",
		"timestamp":   uint64(1767225600000),
		"pcrs":        m.PCRs,
		"certificate": []byte("mock-certificate"),
		"cabundle":    [][]byte{[]byte("mock-ca")},
		"public_key":  options.PublicKey,
		"user_data":   options.UserData,
		"nonce":       options.Nonce,
	}
	nestedBytes, err := cbor.Marshal(nestedDoc)
	if err != nil {
		return nil, fmt.Errorf("encode mock document: %w", err)
	}

	// [protected header, unprotected header, document, signature]
	return cbor.Marshal([]any{
		[]byte{0x01, 0x02, 0x03},
		map[string]any{},
		nestedBytes,
		[]byte{0x04, 0x05, 0x06},
	})
}
