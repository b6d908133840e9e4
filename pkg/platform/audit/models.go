package audit

import (
	"context"
	"time"

	id "soulcert/pkg/domain"
)

// Event is emitted by the registry to capture key ledger actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	// Principal is the caller that performed the action.
	Principal id.PrincipalID
	Action    string
	// Subject is the record ID or offer slot the action targeted.
	Subject string
	// Counterparty is the other principal involved (recipient, issuer or holder).
	Counterparty id.PrincipalID
	Policy       string
	Decision     string
	Reason       string
	RequestID    string
}

type Action string

const (
	EventOfferCreated       Action = "offer_created"
	EventOfferRejected      Action = "offer_rejected"
	EventCredentialIssued   Action = "credential_issued"
	EventCredentialBurned   Action = "credential_burned"
	EventBurnDenied         Action = "burn_denied"
	EventTransferRejected   Action = "transfer_rejected"
	EventNotificationFailed Action = "notification_failed"
)

// Store persists audit events keyed by acting principal.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByPrincipal(ctx context.Context, principal id.PrincipalID) ([]Event, error)
}
