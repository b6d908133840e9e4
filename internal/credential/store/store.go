// Package store persists the offer ledger, record store and ownership index.
//
// All access goes through RunInTx. Implementations serialize transactions
// (one writer at a time) and discard every write made by a callback that
// returns an error, so a failed operation leaves the ledger untouched.
package store

import (
	"context"

	"soulcert/internal/credential/models"
	id "soulcert/pkg/domain"
)

// Ledger is the transaction-scoped view of registry state. A Ledger must not
// be retained after the RunInTx callback returns.
//
// Positional offer lookups outside the queue return sentinel.ErrOutOfRange.
// Lookups of absent records return sentinel.ErrNotFound.
type Ledger interface {
	// AppendOffer adds offer to the end of recipient's queue and returns its slot.
	AppendOffer(ctx context.Context, recipient id.PrincipalID, offer models.Offer) (int, error)
	CountOffers(ctx context.Context, recipient id.PrincipalID) (int, error)
	OfferAt(ctx context.Context, recipient id.PrincipalID, index int) (models.Offer, error)
	ListOffers(ctx context.Context, recipient id.PrincipalID) ([]models.Offer, error)
	// SwapRemoveOffer moves the last offer into slot index and shrinks the
	// queue by one. Relative order of the remaining offers is not preserved.
	SwapRemoveOffer(ctx context.Context, recipient id.PrincipalID, index int) (models.Offer, error)

	// AllocateRecordID returns the next unused record ID.
	AllocateRecordID(ctx context.Context) (id.RecordID, error)
	InsertRecord(ctx context.Context, rec *models.Record) error
	FindRecord(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	FindRecords(ctx context.Context, recordIDs []id.RecordID) ([]*models.Record, error)
	// DeleteRecord removes a record whose holder has already been cleared.
	DeleteRecord(ctx context.Context, recordID id.RecordID) error
	CountRecords(ctx context.Context) (int, error)

	// Holder returns the current holder of a live record.
	Holder(ctx context.Context, recordID id.RecordID) (id.PrincipalID, error)
	// SetHolder assigns or clears the holder of an existing record. The change
	// is checked with models.CheckHolderTransition.
	SetHolder(ctx context.Context, recordID id.RecordID, holder id.PrincipalID) error
	// ListByHolder returns the IDs held by holder in ascending order.
	ListByHolder(ctx context.Context, holder id.PrincipalID) ([]id.RecordID, error)
}

// Tx runs fn as one all-or-nothing ledger transaction.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ledger Ledger) error) error
}

// Durable is implemented by ledgers whose state outlives the process.
// Anything kept outside the ledger and keyed by record ID (the Redis record
// cache) is only safe in front of a durable ledger, because a volatile one
// hands out the same IDs again after a restart.
type Durable interface {
	Durable() bool
}

// IsDurable reports whether tx persists across restarts.
func IsDurable(tx Tx) bool {
	d, ok := tx.(Durable)
	return ok && d.Durable()
}
