package core

import (
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func sampleEvent() Event {
	return Event{
		ID:             "7d1f0c4e-8f3a-4c55-9d8a-2b7e3c1a9f00",
		Seq:            3,
		Type:           EventBidPlaced,
		AuctionID:      1,
		Actor:          "bob",
		Seller:         "seller",
		Bidder:         "bob",
		PreviousBidder: "alice",
		PaymentToken:   "pay-token",
		Amount:         d("250"),
		PreviousAmount: d("200"),
		Timestamp:      time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC),
		PrevHash:       GenesisHash,
	}
}

func TestComputeEventHash(t *testing.T) {
	e := sampleEvent()

	hash := ComputeEventHash(e)

	check.Equal(t, 64, len(hash))
	check.Equal(t, hash, ComputeEventHash(e))

	nanos := fmt.Sprintf("%d", e.Timestamp.UnixNano())
	expectedData := "64:" + GenesisHash + "|1:3|36:" + e.ID + "|10:bid_placed|1:1|3:bob|6:seller|3:bob|5:alice|0:|0:|1:0|9:pay-token|3:250|3:200|" +
		fmt.Sprintf("%d:%s|", len(nanos), nanos)
	check.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte(expectedData))), hash)

	// Hash is independent of the stored Hash field
	e.Hash = "ignored"
	check.Equal(t, hash, ComputeEventHash(e))
}

func TestComputeEventHash_FieldSensitivity(t *testing.T) {
	base := ComputeEventHash(sampleEvent())

	mutations := map[string]func(*Event){
		"amount":    func(e *Event) { e.Amount = d("251") },
		"bidder":    func(e *Event) { e.Bidder = "carol" },
		"seq":       func(e *Event) { e.Seq = 4 },
		"prev hash": func(e *Event) { e.PrevHash = "ff" },
		"timestamp": func(e *Event) { e.Timestamp = e.Timestamp.Add(time.Nanosecond) },
		"type":      func(e *Event) { e.Type = EventAuctionEnded },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			e := sampleEvent()
			mutate(&e)
			check.NotEqual(t, base, ComputeEventHash(e))
		})
	}
}

func TestComputeEventHash_FieldBoundaries(t *testing.T) {
	a := sampleEvent()
	a.Actor, a.Seller = "bob|x", "seller"
	b := sampleEvent()
	b.Actor, b.Seller = "bob", "x|seller"

	check.NotEqual(t, ComputeEventHash(a), ComputeEventHash(b))
}

func TestComputeEventHash_CanonicalAmounts(t *testing.T) {
	a := sampleEvent()
	b := sampleEvent()
	b.Amount = d("250.000")

	check.Equal(t, ComputeEventHash(a), ComputeEventHash(b))
}

func chain(n int) []Event {
	events := make([]Event, 0, n)
	prev := GenesisHash
	for i := 1; i <= n; i++ {
		e := sampleEvent()
		e.Seq = uint64(i)
		e.ID = fmt.Sprintf("event-%d", i)
		e.PrevHash = prev
		e.Hash = ComputeEventHash(e)
		prev = e.Hash
		events = append(events, e)
	}
	return events
}

func TestVerifyEventChain(t *testing.T) {
	events := chain(4)

	assert.NoError(t, VerifyEventChain(0, GenesisHash, events))
	assert.NoError(t, VerifyEventChain(2, events[1].Hash, events[2:]))
	assert.NoError(t, VerifyEventChain(0, GenesisHash, nil))

	t.Run("gap in sequence", func(t *testing.T) {
		check.Error(t, VerifyEventChain(0, GenesisHash, []Event{events[0], events[2]}))
	})

	t.Run("tampered amount", func(t *testing.T) {
		tampered := chain(4)
		tampered[1].Amount = d("1")
		check.Error(t, VerifyEventChain(0, GenesisHash, tampered))
	})

	t.Run("wrong anchor", func(t *testing.T) {
		check.Error(t, VerifyEventChain(1, GenesisHash, events[1:]))
	})
}

func TestEventTime_StripsMonotonicReading(t *testing.T) {
	now := time.Now()
	normalized := eventTime(now)

	check.True(t, normalized.Location() == time.UTC)
	check.True(t, normalized.Equal(now))
	check.Equal(t, now.UnixNano(), normalized.UnixNano())
}
