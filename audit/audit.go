/*
Package audit implements the append-only, hash-chained audit trail.

PURPOSE:
  Every ledger mutation (grant, deduction, reversal, expiration) appends
  exactly one event here. Each event's hash covers the previous event's
  hash, so altering any past payload breaks verification from that point
  forward. Append is the only write path; no update or delete exists.

INVARIANTS:
  1. APPEND-ONLY: no Update, no Delete. EVER.
  2. MONOTONIC: sequence numbers are assigned 1, 2, 3, ... with no gaps.
  3. CHAINED: hash = SHA-256(prevHash || canonical event body).
  4. VERIFIABLE: replaying the chain from sequence 1 reproduces every
     stored hash, or pinpoints the first broken sequence.

CANONICAL FORM:
  The hashed body is a struct with fixed fields (no map[string]any), so
  json.Marshal field order is deterministic and hashing is reproducible.
  The body covers sequence, timestamp, event type, employee and payload -
  tampering with any of them is detected, not just payload edits.

SEE ALSO:
  - ../ledger/engine.go: appends events inside the same store transaction
    as the mutation they describe
*/
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// EVENT - One link in the chain
// =============================================================================

type EventType string

const (
	EventGrant  EventType = "GRANT"
	EventDeduct EventType = "DEDUCT"
	EventRevert EventType = "REVERT"
	EventExpire EventType = "EXPIRE"
)

// AllocationDelta records one lot's share of a mutation.
type AllocationDelta struct {
	LotID  string `json:"lot_id"`
	Amount string `json:"amount"`
}

// Payload is the canonical serialization of a state delta. All fields are
// plain strings or structs so marshaling is deterministic.
type Payload struct {
	LotID        string            `json:"lot_id,omitempty"`
	UsageEventID string            `json:"usage_event_id,omitempty"`
	ReferenceID  string            `json:"reference_id,omitempty"`
	FiscalYear   int               `json:"fiscal_year,omitempty"`
	Date         string            `json:"date,omitempty"`
	Quantity     string            `json:"quantity,omitempty"`
	Allocations  []AllocationDelta `json:"allocations,omitempty"`
}

// Event is one entry in the hash-chained log.
type Event struct {
	Sequence   int64
	Timestamp  time.Time
	Type       EventType
	EmployeeID string
	Payload    Payload
	PrevHash   string
	Hash       string
}

// canonicalBody is the exact structure hashed for each event. Field order
// is fixed by the struct definition; never reorder these.
type canonicalBody struct {
	Sequence   int64     `json:"seq"`
	Timestamp  string    `json:"ts"`
	Type       EventType `json:"type"`
	EmployeeID string    `json:"employee_id"`
	Payload    Payload   `json:"payload"`
}

// Canonical returns the deterministic byte form of the event body
// (everything except PrevHash and Hash).
func (e Event) Canonical() ([]byte, error) {
	return json.Marshal(canonicalBody{
		Sequence:   e.Sequence,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:       e.Type,
		EmployeeID: e.EmployeeID,
		Payload:    e.Payload,
	})
}

// ComputeHash derives the chain hash for an event given its predecessor's.
func ComputeHash(prevHash string, e Event) (string, error) {
	body, err := e.Canonical()
	if err != nil {
		return "", fmt.Errorf("canonicalize audit event: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// =============================================================================
// STORE - Persistence for events (append-only)
// =============================================================================

// Store persists audit events. Implementations must reject duplicate
// sequence numbers; nothing else is ever written.
type Store interface {
	// AppendEvent persists an event. The trail has already assigned
	// sequence and hash.
	AppendEvent(ctx context.Context, e Event) error

	// LastEvent returns the highest-sequence event, if any.
	LastEvent(ctx context.Context) (Event, bool, error)

	// EventRange returns events with fromSeq <= sequence <= toSeq,
	// ordered by sequence.
	EventRange(ctx context.Context, fromSeq, toSeq int64) ([]Event, error)
}

// =============================================================================
// TRAIL - Chain maintenance over a Store
// =============================================================================

// Trail assigns sequences and hashes, and verifies the chain. It holds no
// state of its own, so one can be constructed over a transactional store
// view to make the append atomic with the mutation it describes.
type Trail struct {
	store Store
}

func NewTrail(store Store) *Trail {
	return &Trail{store: store}
}

// Append assigns the next sequence, computes the chain hash and persists
// the event. Returns the stored event.
func (t *Trail) Append(ctx context.Context, e Event) (Event, error) {
	last, ok, err := t.store.LastEvent(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("load chain head: %w", err)
	}

	prevHash := ""
	e.Sequence = 1
	if ok {
		prevHash = last.Hash
		e.Sequence = last.Sequence + 1
	}

	e.PrevHash = prevHash
	e.Hash, err = ComputeHash(prevHash, e)
	if err != nil {
		return Event{}, err
	}

	if err := t.store.AppendEvent(ctx, e); err != nil {
		return Event{}, fmt.Errorf("append audit event: %w", err)
	}
	return e, nil
}

// Verify recomputes the chain over [fromSeq, toSeq]. It returns ok=true if
// every stored hash is reproduced; otherwise ok=false and the sequence of
// the first event that fails verification.
func (t *Trail) Verify(ctx context.Context, fromSeq, toSeq int64) (bool, int64, error) {
	if fromSeq < 1 {
		fromSeq = 1
	}
	events, err := t.store.EventRange(ctx, fromSeq, toSeq)
	if err != nil {
		return false, 0, err
	}
	if len(events) == 0 {
		return true, 0, nil
	}

	// Anchor the chain: the predecessor of fromSeq fixes the expected
	// prev-hash; sequence 1 anchors on the empty string.
	expectedPrev := ""
	if fromSeq > 1 {
		anchor, err := t.store.EventRange(ctx, fromSeq-1, fromSeq-1)
		if err != nil {
			return false, 0, err
		}
		if len(anchor) != 1 {
			return false, fromSeq, nil
		}
		expectedPrev = anchor[0].Hash
	}

	expectedSeq := fromSeq
	for _, e := range events {
		if e.Sequence != expectedSeq || e.PrevHash != expectedPrev {
			return false, e.Sequence, nil
		}
		hash, err := ComputeHash(expectedPrev, e)
		if err != nil {
			return false, 0, err
		}
		if hash != e.Hash {
			return false, e.Sequence, nil
		}
		expectedPrev = e.Hash
		expectedSeq++
	}
	return true, 0, nil
}

// Events returns the stored events in [fromSeq, toSeq] without verifying.
func (t *Trail) Events(ctx context.Context, fromSeq, toSeq int64) ([]Event, error) {
	return t.store.EventRange(ctx, fromSeq, toSeq)
}
