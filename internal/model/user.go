package model

import (
	"time"
)

// CachedUser is one mirrored directory entry. GraphID is the upstream-assigned
// primary key and is immutable once written; UserPrincipalName is the secondary
// lookup key and may change upstream between syncs.
type CachedUser struct {
	GraphID           string `json:"graph_id"`
	UserPrincipalName string `json:"user_principal_name"`

	DisplayName    string `json:"display_name"`
	GivenName      string `json:"given_name"`
	Surname        string `json:"surname"`
	Mail           string `json:"mail"`
	Department     string `json:"department"`
	JobTitle       string `json:"job_title"`
	OfficeLocation string `json:"office_location"`
	CompanyName    string `json:"company_name"`
	AccountEnabled bool   `json:"account_enabled"`

	// IsDeleted marks upstream removal reported by a delta sync. The row is
	// kept for auditability and excluded from normal reads.
	IsDeleted bool `json:"is_deleted"`

	// Enrichment fields owned by the stats refresh, not the directory sync.
	// Nil means the usage report has never carried a value for this user.
	LastChatActivity    *time.Time `json:"last_chat_activity,omitempty"`
	LastCallActivity    *time.Time `json:"last_call_activity,omitempty"`
	LastMeetingActivity *time.Time `json:"last_meeting_activity,omitempty"`

	FirstSyncedAt time.Time `json:"first_synced_at"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
}

// MergeFrom overlays incoming directory attributes onto the receiver while
// preserving identity, first-sync bookkeeping and any enrichment fields the
// incoming record does not carry. Stores use it to get merge-not-overwrite
// upsert semantics.
//
// A tombstone only flips IsDeleted: delta removals carry no attributes, and
// blanking the stored ones would lose the audit trail.
func (u *CachedUser) MergeFrom(incoming *CachedUser) {
	if incoming.IsDeleted {
		u.IsDeleted = true
		if !incoming.LastSyncedAt.IsZero() {
			u.LastSyncedAt = incoming.LastSyncedAt
		}
		return
	}

	u.UserPrincipalName = incoming.UserPrincipalName
	u.DisplayName = incoming.DisplayName
	u.GivenName = incoming.GivenName
	u.Surname = incoming.Surname
	u.Mail = incoming.Mail
	u.Department = incoming.Department
	u.JobTitle = incoming.JobTitle
	u.OfficeLocation = incoming.OfficeLocation
	u.CompanyName = incoming.CompanyName
	u.AccountEnabled = incoming.AccountEnabled
	u.IsDeleted = incoming.IsDeleted

	if incoming.LastChatActivity != nil {
		u.LastChatActivity = incoming.LastChatActivity
	}
	if incoming.LastCallActivity != nil {
		u.LastCallActivity = incoming.LastCallActivity
	}
	if incoming.LastMeetingActivity != nil {
		u.LastMeetingActivity = incoming.LastMeetingActivity
	}

	if !incoming.LastSyncedAt.IsZero() {
		u.LastSyncedAt = incoming.LastSyncedAt
	}
}

// UsageRecord is one row of the per-user activity statistics feed, keyed by
// the same principal name the directory sync uses as secondary key.
type UsageRecord struct {
	UserPrincipalName   string     `json:"user_principal_name"`
	LastChatActivity    *time.Time `json:"last_chat_activity,omitempty"`
	LastCallActivity    *time.Time `json:"last_call_activity,omitempty"`
	LastMeetingActivity *time.Time `json:"last_meeting_activity,omitempty"`
}
