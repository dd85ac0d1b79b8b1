package validation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/audit"
	"github.com/cloudx-io/nftauction/core"
)

// journal builds a hash-chained run of bid events starting at genesis.
func journal(n int) []core.Event {
	events := make([]core.Event, 0, n)
	prev := core.GenesisHash
	for i := 1; i <= n; i++ {
		e := core.Event{
			ID:        "event-" + string(rune('a'+i)),
			Seq:       uint64(i),
			Type:      core.EventBidPlaced,
			AuctionID: 1,
			Actor:     "alice",
			Bidder:    "alice",
			Amount:    decimal.NewFromInt(int64(100 * i)),
			Timestamp: time.Date(2026, 1, 1, 12, i, 0, 0, time.UTC),
			PrevHash:  prev,
		}
		e.Hash = core.ComputeEventHash(e)
		prev = e.Hash
		events = append(events, e)
	}
	return events
}

func newSigner(t *testing.T) (*audit.Signer, string) {
	t.Helper()
	s, err := audit.NewSigner()
	assert.NoError(t, err)
	keyPEM, err := s.PublicKeyPEM()
	assert.NoError(t, err)
	return s, keyPEM
}

func envelopes(t *testing.T, s *audit.Signer, events []core.Event) []auctionapi.EventEnvelope {
	t.Helper()
	result := make([]auctionapi.EventEnvelope, 0, len(events))
	for _, e := range events {
		receipt, err := s.Sign(e)
		assert.NoError(t, err)
		result = append(result, auctionapi.EventEnvelope{Event: e, Receipt: receipt.EncodeBase64()})
	}
	return result
}

func TestVerifyReceipt_Valid(t *testing.T) {
	s, keyPEM := newSigner(t)
	e := journal(1)[0]
	receipt, err := s.Sign(e)
	assert.NoError(t, err)

	result, err := VerifyReceipt(receipt, keyPEM)

	assert.NoError(t, err)
	check.True(t, result.IsValid())
	check.Equal(t, e.Hash, result.Event.Hash)
	check.True(t, result.Event.Amount.Equal(e.Amount))
}

func TestVerifyReceipt_WrongKey(t *testing.T) {
	s, _ := newSigner(t)
	_, otherPEM := newSigner(t)
	receipt, err := s.Sign(journal(1)[0])
	assert.NoError(t, err)

	result, err := VerifyReceipt(receipt, otherPEM)

	assert.NoError(t, err)
	check.False(t, result.SignatureValid)
	check.False(t, result.KeyIDMatch)
	check.True(t, result.HashValid)
	check.False(t, result.IsValid())
}

func TestVerifyReceipt_SignedButInconsistentEvent(t *testing.T) {
	s, keyPEM := newSigner(t)
	e := journal(1)[0]
	e.Amount = decimal.NewFromInt(1)
	receipt, err := s.Sign(e)
	assert.NoError(t, err)

	result, err := VerifyReceipt(receipt, keyPEM)

	assert.NoError(t, err)
	check.True(t, result.SignatureValid)
	check.False(t, result.HashValid)
	check.False(t, result.IsValid())
}

func TestVerifyReceipt_Malformed(t *testing.T) {
	_, keyPEM := newSigner(t)

	_, err := VerifyReceipt(auctionapi.ReceiptCOSE("not cbor"), keyPEM)
	check.Error(t, err)

	_, err = VerifyReceipt(nil, "not a pem")
	check.Error(t, err)
}

func TestValidateChain(t *testing.T) {
	events := journal(4)

	check.NoError(t, ValidateChain(events))
	check.NoError(t, ValidateChain(events[2:]))
	check.NoError(t, ValidateChain(nil))

	reordered := []core.Event{events[0], events[2], events[1]}
	check.Error(t, ValidateChain(reordered))

	forged := journal(2)
	forged[0].PrevHash = forged[1].Hash
	check.Error(t, ValidateChain(forged))
}

func TestVerifyEnvelopes(t *testing.T) {
	s, keyPEM := newSigner(t)
	envs := envelopes(t, s, journal(3))

	results, err := VerifyEnvelopes(envs, keyPEM)

	assert.NoError(t, err)
	assert.Equal(t, 3, len(results))
	for _, r := range results {
		check.True(t, r.IsValid())
	}
}

func TestVerifyEnvelopes_ReceiptForDifferentEvent(t *testing.T) {
	s, keyPEM := newSigner(t)
	events := journal(2)
	envs := envelopes(t, s, events)
	envs[1].Event.Hash = "substituted"

	results, err := VerifyEnvelopes(envs, keyPEM)

	assert.NoError(t, err)
	check.True(t, results[0].IsValid())
	check.False(t, results[1].IsValid())
}

func TestVerifyEnvelopes_MissingReceipt(t *testing.T) {
	_, keyPEM := newSigner(t)

	_, err := VerifyEnvelopes([]auctionapi.EventEnvelope{{Event: journal(1)[0]}}, keyPEM)
	check.Error(t, err)
}

func TestValidateHeadAttestation_MockDocument(t *testing.T) {
	s, keyPEM := newSigner(t)
	attester := &audit.MockAttester{PCRs: map[uint64][]byte{
		0: {0x01}, 1: {0x02}, 2: {0x03},
	}}
	att, err := audit.AttestHead(attester, s, 7, "head-hash", "")
	assert.NoError(t, err)
	known := []PCRSet{{PCR0: "01", PCR1: "02", PCR2: "03", CommitHash: "abc"}}

	result, err := ValidateHeadAttestation(att.Document, known, "head-hash", keyPEM)

	assert.NoError(t, err)
	check.True(t, result.PCRsValid)
	check.True(t, result.HeadMatch)
	check.True(t, result.ReceiptKeyMatch)
	// Mock documents carry placeholder certificates and signatures
	check.False(t, result.CertificateValid)
	check.False(t, result.SignatureValid)
	check.False(t, result.IsValid())

	_, otherPEM := newSigner(t)
	result, err = ValidateHeadAttestation(att.Document, nil, "other-head", otherPEM)
	assert.NoError(t, err)
	check.False(t, result.PCRsValid)
	check.False(t, result.HeadMatch)
	check.False(t, result.ReceiptKeyMatch)
}

func TestValidateHeadAttestation_Malformed(t *testing.T) {
	_, err := ValidateHeadAttestation([]byte("garbage"), nil, "", "")
	check.Error(t, err)
}

func TestLoadPCRsFromFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "pcrs.json")
	assert.NoError(t, os.WriteFile(good, []byte(`{"pcr_sets":[{"pcr0":"a","pcr1":"b","pcr2":"c","commit_hash":"d"}]}`), 0o600))
	empty := filepath.Join(dir, "empty.json")
	assert.NoError(t, os.WriteFile(empty, []byte(`{"pcr_sets":[]}`), 0o600))

	sets, err := LoadPCRsFromFile(good)
	assert.NoError(t, err)
	check.Equal(t, 0, MatchPCRs(auctionapi.PCRs{ImageFileHash: "a", KernelHash: "b", ApplicationHash: "c"}, sets))
	check.Equal(t, -1, MatchPCRs(auctionapi.PCRs{ImageFileHash: "a"}, sets))

	_, err = LoadPCRsFromFile(empty)
	check.Error(t, err)

	_, err = LoadPCRsFromFile(filepath.Join(dir, "missing.json"))
	check.Error(t, err)
}
