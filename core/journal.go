package core

import (
	"github.com/google/uuid"
)

// record stamps, chains and appends an event, then hands it to the emitter.
// Callers must hold r.mu and call it only after the mutation has been applied.
func (r *Registry) record(e Event) {
	e.ID = uuid.New().String()
	e.Seq = uint64(len(r.journal)) + 1
	e.Timestamp = eventTime(e.Timestamp)
	e.PrevHash = GenesisHash
	if n := len(r.journal); n > 0 {
		e.PrevHash = r.journal[n-1].Hash
	}
	e.Hash = ComputeEventHash(e)

	r.journal = append(r.journal, e)
	r.emitter.Emit(e)
}

// Events returns journaled events with a sequence number greater than afterSeq.
func (r *Registry) Events(afterSeq uint64) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if afterSeq >= uint64(len(r.journal)) {
		return []Event{}
	}
	result := make([]Event, len(r.journal)-int(afterSeq))
	copy(result, r.journal[afterSeq:])
	return result
}

// AuctionEvents returns the journaled events of a single auction in order.
func (r *Registry) AuctionEvents(id uint64) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Event, 0)
	for _, e := range r.journal {
		if e.AuctionID == id {
			result = append(result, e)
		}
	}
	return result
}

// Head returns the sequence number and hash of the latest journaled event.
func (r *Registry) Head() (uint64, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.journal)
	if n == 0 {
		return 0, GenesisHash
	}
	return r.journal[n-1].Seq, r.journal[n-1].Hash
}
