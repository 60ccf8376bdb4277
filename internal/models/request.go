package models

import (
	"fmt"
	"strings"
	"time"
)

// ProcessingStatus is the Request lifecycle tag described in spec §4.H.
// It round-trips to a plain string in the database so that the "failed"
// variant can carry an associated, human-readable reason.
type ProcessingStatus struct {
	State  ProcessingState
	Reason string // only set when State == StateFailed
}

// ProcessingState enumerates the named states from §3/§4.H.
type ProcessingState string

const (
	StatePending             ProcessingState = "pending"
	StateDownloadInitiated   ProcessingState = "download_initiated"
	StateQueued              ProcessingState = "queued"
	StateOrganizingFiles     ProcessingState = "organizing_files"
	StateGeneratingMetadata  ProcessingState = "generating_metadata"
	StateSavingCover         ProcessingState = "saving_cover"
	StateCompleted           ProcessingState = "completed"
	StateReviewRequired      ProcessingState = "review_required"
	StateFailed              ProcessingState = "failed"
)

// String renders the status using the "failed:<reason>" encoding the
// external taxonomy (§7) and the durable store both expect.
func (s ProcessingStatus) String() string {
	if s.State == StateFailed {
		return "failed:" + s.Reason
	}
	return string(s.State)
}

// ParseProcessingStatus is the inverse of String.
func ParseProcessingStatus(s string) ProcessingStatus {
	if rest, ok := strings.CutPrefix(s, "failed:"); ok {
		return ProcessingStatus{State: StateFailed, Reason: rest}
	}
	return ProcessingStatus{State: ProcessingState(s)}
}

// Failed builds a "failed:<reason>" status, truncating the reason to a
// single line the way the processor's failure handler does.
func Failed(reason string) ProcessingStatus {
	reason = strings.TrimSpace(strings.SplitN(reason, "\n", 2)[0])
	return ProcessingStatus{State: StateFailed, Reason: reason}
}

// happyPathOrder is the strict, non-decreasing ordering §4.H and P2 require
// for a Request progressing without user intervention.
var happyPathOrder = map[ProcessingState]int{
	StatePending:            0,
	StateDownloadInitiated:  1,
	StateQueued:             2,
	StateOrganizingFiles:    3,
	StateGeneratingMetadata: 4,
	StateSavingCover:        5,
	StateCompleted:          6,
}

// IsMonotonicAdvance reports whether moving from prev to next respects the
// happy-path ordering (P2). Moves into StateFailed or StateReviewRequired
// are always permitted since they are absorbing/terminal states.
func IsMonotonicAdvance(prev, next ProcessingStatus) bool {
	if next.State == StateFailed || next.State == StateReviewRequired {
		return true
	}
	p, pok := happyPathOrder[prev.State]
	n, nok := happyPathOrder[next.State]
	if !pok || !nok {
		return false
	}
	return n >= p
}

// IsTerminal reports whether a status cannot advance further on its own.
func (s ProcessingStatus) IsTerminal() bool {
	return s.State == StateCompleted || s.State == StateFailed || s.State == StateReviewRequired
}

// Request is a single user's pursuit of a single book, keyed by
// (book asin, user). See §3 for the uniqueness and lifecycle invariants.
type Request struct {
	ID int64

	BookASIN string
	User     string

	CreatedAt time.Time
	UpdatedAt time.Time

	TorrentHash *string

	DownloadProgress float64 // [0,1]
	DownloadState    string  // free-form, mirrors the adapter's state string

	Status ProcessingStatus
}

// Key returns the (book, user) uniqueness tuple as a comparable cache/lock
// key for the per-identifier single-flight guard in §4.B/§4.H.
func (r *Request) Key() RequestKey {
	return RequestKey{BookASIN: r.BookASIN, User: r.User}
}

// RequestKey is the (book, user) uniqueness tuple.
type RequestKey struct {
	BookASIN string
	User     string
}

func (k RequestKey) String() string {
	return fmt.Sprintf("%s/%s", k.BookASIN, k.User)
}

// UserGroup models the coarse authorization tiers §4.H's auto-dispatch gate
// checks ("at or above the trusted group"). Authentication/session
// middleware that resolves a caller to one of these is out of scope (§1);
// callers already know their own group by the time they reach the core.
type UserGroup int

const (
	GroupUntrusted UserGroup = iota
	GroupTrusted
	GroupAdmin
)

// AtLeastTrusted reports whether g is trusted or above.
func (g UserGroup) AtLeastTrusted() bool {
	return g >= GroupTrusted
}
