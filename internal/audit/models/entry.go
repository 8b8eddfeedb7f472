package models

import (
	"time"

	id "namegate/pkg/domain"
)

// Action names what the audit entry records. Disclosure is currently the only
// audited action.
type Action string

const ActionNameDisclosed Action = "NAME_DISCLOSED"

// Entry is one immutable audit record: who saw which of a user's names, when,
// and by which rule. IDs are ULIDs so entries sort by creation time.
type Entry struct {
	ID            string        `json:"id"`
	Action        Action        `json:"action"`
	TargetUserID  id.UserID     `json:"target_user_id"`
	RequesterID   *id.UserID    `json:"requester_id,omitempty"`
	ClientID      *id.ClientID  `json:"client_id,omitempty"`
	ContextID     *id.ContextID `json:"context_id,omitempty"`
	DisclosedName string        `json:"disclosed_name"`
	Tier          string        `json:"tier"`
	AccessedAt    time.Time     `json:"accessed_at"`
}
