package models

import (
	"time"

	id "namegate/pkg/domain"
)

// AppContextAssignment records which of a user's contexts governs disclosure
// to a particular client application. One binding per (user, client); writing
// a new one replaces the old.
type AppContextAssignment struct {
	UserID     id.UserID    `json:"user_id"`
	ClientID   id.ClientID  `json:"client_id"`
	ContextID  id.ContextID `json:"context_id"`
	AssignedAt time.Time    `json:"assigned_at"`
}
