package models

import (
	"strings"
	"time"

	id "namegate/pkg/domain"
	dErrors "namegate/pkg/domain-errors"
)

// ClientApplication is a registered third-party application that can open
// name-disclosure sessions. The secret is stored only as a bcrypt hash.
type ClientApplication struct {
	ClientID        id.ClientID `json:"client_id"`
	DisplayName     string      `json:"display_name"`
	PublisherDomain string      `json:"publisher_domain"`
	SecretHash      string      `json:"-"`
	Active          bool        `json:"active"`
	CreatedAt       time.Time   `json:"created_at"`
}

func NewClientApplication(clientID id.ClientID, displayName, publisherDomain, secretHash string, now time.Time) (*ClientApplication, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" || len(displayName) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client display name must be between 1 and 128 characters")
	}
	if secretHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client requires a secret hash")
	}
	return &ClientApplication{
		ClientID:        clientID,
		DisplayName:     displayName,
		PublisherDomain: publisherDomain,
		SecretHash:      secretHash,
		Active:          true,
		CreatedAt:       now,
	}, nil
}
