package models

import "time"

// InternalLibrarySentinel is the synthetic root path that marks a
// reconciliation session (re-scan of the library itself, §3/glossary).
const InternalLibrarySentinel = "__INTERNAL_LIBRARY__"

// SessionStatus enumerates ImportSession.Status.
type SessionStatus string

const (
	SessionScanning    SessionStatus = "scanning"
	SessionReviewReady SessionStatus = "review_ready"
	SessionImporting   SessionStatus = "importing"
	SessionCompleted   SessionStatus = "completed"
	SessionFailed      SessionStatus = "failed"
)

// ImportSession owns a collection of ImportItems discovered by one scan.
type ImportSession struct {
	ID        int64
	RootPath  string
	Status    SessionStatus
	CreatedAt time.Time

	// OwnerUser is the user the synthetic Requests driven by the import
	// executor (§4.N) are created under.
	OwnerUser string
}

// IsReconciliation reports whether this session re-organizes books already
// inside the library rather than importing from an external location.
func (s *ImportSession) IsReconciliation() bool {
	return s.RootPath == InternalLibrarySentinel
}

// ItemStatus enumerates ImportItem.Status.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemMatched ItemStatus = "matched"
	ItemMissing ItemStatus = "missing"
	ItemImported ItemStatus = "imported"
	ItemIgnored ItemStatus = "ignored"
	ItemError   ItemStatus = "error"
)

// ImportItem is one detected "book unit" within an ImportSession (§3/§4.L).
type ImportItem struct {
	ID        int64
	SessionID int64

	// SourcePath is a file path, a directory path, or a "|"-joined list of
	// sibling file paths making up one book (§3).
	SourcePath string

	DetectedTitle  string
	DetectedAuthor string

	MatchASIN  *string
	MatchScore float64 // [0,1]

	Status   ItemStatus
	ErrorMsg string
}
