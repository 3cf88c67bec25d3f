package domain

import "time"

// AuditLog represents an audit log entry for tracking important actions
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	Actor     string                 `db:"actor" json:"actor,omitempty"`
	SessionID string                 `db:"session_id" json:"session_id,omitempty"`
	Action    string                 `db:"action" json:"action"`
	Category  string                 `db:"category" json:"category"`
	Details   map[string]interface{} `db:"details" json:"details"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Audit action categories
const (
	AuditCategorySession    = "session"
	AuditCategoryRandomness = "randomness"
	AuditCategorySettlement = "settlement"
	AuditCategoryBalance    = "balance"
)

// AuditCategoryFor groups event kinds for audit queries.
func AuditCategoryFor(kind EventKind) string {
	switch kind {
	case EventRandomnessRequested, EventRandomnessFulfilled:
		return AuditCategoryRandomness
	case EventSessionResolved, EventPayoutPaid:
		return AuditCategorySettlement
	case EventRefundPaid:
		return AuditCategoryBalance
	default:
		return AuditCategorySession
	}
}
