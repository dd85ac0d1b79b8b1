package validation

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudx-io/nftauction/auctionapi"
)

// AWS Nitro Enclaves root certificate (P-384, valid until 2049-10-28).
// Source: https://docs.aws.amazon.com/enclaves/latest/user/verify-root.html
const awsNitroRootCA = `-----BEGIN CERTIFICATE-----
MIICETCCAZagAwIBAgIRAPkxdWgbkK/hHUbMtOTn+FYwCgYIKoZIzj0EAwMwSTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoMBkFtYXpvbjEMMAoGA1UECwwDQVdTMRswGQYD
VQQDDBJhd3Mubml0cm8tZW5jbGF2ZXMwHhcNMTkxMDI4MTMyODA1WhcNNDkxMDI4
MTQyODA1WjBJMQswCQYDVQQGEwJVUzEPMA0GA1UECgwGQW1hem9uMQwwCgYDVQQL
DANBV1MxGzAZBgNVBAMMEmF3cy5uaXRyby1lbmNsYXZlczB2MBAGByqGSM49AgEG
BSuBBAAiA2IABPwCVOumCMHzaHDimtqQvkY4MpJzbolL//Zy2YlES1BR5TSksfbb
48C8WBoyt7F2Bw7eEtaaP+ohG2bnUs990d0JX28TcPQXCEPZ3BABIeTPYwEoCWZE
h8l5YoQwTcU/9KNCMEAwDwYDVR0TAQH/BAUwAwEB/zAdBgNVHQ4EFgQUkCW1DdkF
R+eWw5b6cp3PmanfS5YwDgYDVR0PAQH/BAQDAgGGMAoGCCqGSM49BAMDA2kAMGYC
MQCjfy+Rocm9Xue4YnwWmNJVA44fA0P5W2OpYow9OYCVRaEevL8uO1XYru5xtMPW
rfMCMQCi85sWBbJwKKXdS6BptQFuZbT73o/gBh1qUxl/nNr12UO8Yfwr6wPLb+6N
IwLz3/Y=
-----END CERTIFICATE-----`

// LoadPCRsFromFile loads known PCR sets from a JSON file.
func LoadPCRsFromFile(path string) ([]PCRSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}
	var config PCRConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}
	if len(config.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets found in config file")
	}
	return config.PCRSets, nil
}

// MatchPCRs returns the index of the known set matching PCR0-2, or -1.
func MatchPCRs(pcrs auctionapi.PCRs, knownSets []PCRSet) int {
	for i, known := range knownSets {
		if pcrs.ImageFileHash == known.PCR0 && pcrs.KernelHash == known.PCR1 && pcrs.ApplicationHash == known.PCR2 {
			return i
		}
	}
	return -1
}

// VerifyCertificateChain checks that the leaf certificate chains to the AWS
// Nitro root through the bundle, evaluated at the attestation time.
func VerifyCertificateChain(certB64 string, caBundleB64 []string, at time.Time) error {
	leaf, err := parseCertificate(certB64)
	if err != nil {
		return fmt.Errorf("leaf certificate: %w", err)
	}

	intermediates := x509.NewCertPool()
	for i, caB64 := range caBundleB64 {
		ca, err := parseCertificate(caB64)
		if err != nil {
			return fmt.Errorf("CA bundle entry %d: %w", i, err)
		}
		intermediates.AddCert(ca)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM([]byte(awsNitroRootCA)) {
		return fmt.Errorf("failed to parse AWS Nitro root CA")
	}

	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("certificate chain validation failed: %w", err)
	}
	return nil
}

func parseCertificate(b64 string) (*x509.Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

// ValidateHeadAttestation validates a Nitro attestation over the journal head.
//
// Parameters:
//   - document: raw attestation bytes from an attest response
//   - knownPCRs: accepted enclave measurements
//   - expectedHeadHash: journal head the caller wants vouched for
//   - receiptKeyPEM: receipt verification key the caller intends to trust
//
// Returns:
//   - HeadValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (malformed document or user data)
func ValidateHeadAttestation(document []byte, knownPCRs []PCRSet, expectedHeadHash, receiptKeyPEM string) (*HeadValidationResult, error) {
	doc, userDataBytes, err := auctionapi.ParseAttestationDoc(document)
	if err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}
	var userData auctionapi.HeadAttestationUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return nil, fmt.Errorf("parse user data: %w", err)
	}

	result := &HeadValidationResult{}
	details := &result.ValidationDetails

	if idx := MatchPCRs(doc.PCRs, knownPCRs); idx >= 0 {
		result.PCRsValid = true
		*details = append(*details, fmt.Sprintf("PCR measurements valid (set #%d, commit %s)", idx, knownPCRs[idx].CommitHash))
	} else {
		*details = append(*details,
			fmt.Sprintf("PCR0: %s (no match)", doc.PCRs.ImageFileHash),
			fmt.Sprintf("PCR1: %s (no match)", doc.PCRs.KernelHash),
			fmt.Sprintf("PCR2: %s (no match)", doc.PCRs.ApplicationHash))
	}

	switch {
	case doc.Certificate == "":
		*details = append(*details, "Missing certificate")
	case len(doc.CABundle) == 0:
		*details = append(*details, "Missing CA bundle")
	default:
		if err := VerifyCertificateChain(doc.Certificate, doc.CABundle, doc.Timestamp); err != nil {
			*details = append(*details, fmt.Sprintf("Certificate chain validation failed: %v", err))
		} else {
			result.CertificateValid = true
			*details = append(*details, "Certificate chain verified")
		}
	}

	if err := VerifyNitroSignature(document, doc.Certificate); err != nil {
		*details = append(*details, fmt.Sprintf("COSE signature verification failed: %v", err))
	} else {
		result.SignatureValid = true
		*details = append(*details, "COSE signature verified")
	}

	if userData.HeadHash == expectedHeadHash {
		result.HeadMatch = true
		*details = append(*details, fmt.Sprintf("Journal head %d matches", userData.HeadSeq))
	} else {
		*details = append(*details, fmt.Sprintf("Journal head mismatch: attested %s, expected %s", userData.HeadHash, expectedHeadHash))
	}

	if strings.TrimSpace(userData.ReceiptKey) == strings.TrimSpace(receiptKeyPEM) {
		result.ReceiptKeyMatch = true
		*details = append(*details, "Receipt key matches attestation")
	} else {
		*details = append(*details, "Receipt key mismatch: provided key does not match attested key")
	}

	return result, nil
}
