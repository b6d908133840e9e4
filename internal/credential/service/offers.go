package service

import (
	"context"
	"strconv"

	"soulcert/internal/credential/events"
	"soulcert/internal/credential/models"
	"soulcert/internal/credential/store"
	id "soulcert/pkg/domain"
	dErrors "soulcert/pkg/domain-errors"
	"soulcert/pkg/platform/audit"
)

// CreateOffer appends an offer from issuer to recipient's queue and returns
// its slot. Duplicate offers are allowed.
func (s *Service) CreateOffer(ctx context.Context, issuer, recipient id.PrincipalID, metadataRef string, policyCode int) (int, error) {
	ctx, finish := s.begin(ctx, "create_offer")

	if err := requireCaller(issuer); err != nil {
		return 0, finish(err)
	}
	if recipient.IsNil() {
		return 0, finish(dErrors.New(dErrors.CodeInvalidInput, "recipient is required"))
	}
	offer, err := models.NewOffer(issuer, metadataRef, policyCode)
	if err != nil {
		return 0, finish(err)
	}

	var slot int
	err = s.tx.RunInTx(ctx, func(l store.Ledger) error {
		var err error
		slot, err = l.AppendOffer(ctx, recipient, offer)
		return err
	})
	if err := finish(err); err != nil {
		return 0, err
	}

	s.emitAudit(ctx, audit.Event{
		Principal:    issuer,
		Action:       string(audit.EventOfferCreated),
		Subject:      strconv.Itoa(slot),
		Counterparty: recipient,
		Policy:       offer.Policy.String(),
		Decision:     "created",
	})
	return slot, nil
}

// CountOffers returns the length of caller's own queue.
func (s *Service) CountOffers(ctx context.Context, caller id.PrincipalID) (int, error) {
	ctx, finish := s.begin(ctx, "count_offers")
	if err := requireCaller(caller); err != nil {
		return 0, finish(err)
	}

	var n int
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		var err error
		n, err = l.CountOffers(ctx, caller)
		return err
	})
	return n, finish(err)
}

// GetOffer returns the offer at index in caller's queue.
func (s *Service) GetOffer(ctx context.Context, caller id.PrincipalID, index int) (models.Offer, error) {
	ctx, finish := s.begin(ctx, "get_offer")
	if err := requireCaller(caller); err != nil {
		return models.Offer{}, finish(err)
	}

	var offer models.Offer
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		var err error
		offer, err = l.OfferAt(ctx, caller, index)
		return err
	})
	return offer, finish(err)
}

// ListOffers snapshots caller's queue in current slot order. Slot order is
// not stable across accept and reject.
func (s *Service) ListOffers(ctx context.Context, caller id.PrincipalID) ([]models.Offer, error) {
	ctx, finish := s.begin(ctx, "list_offers")
	if err := requireCaller(caller); err != nil {
		return nil, finish(err)
	}

	var offers []models.Offer
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		var err error
		offers, err = l.ListOffers(ctx, caller)
		return err
	})
	return offers, finish(err)
}

// Reject drops the offer at index from caller's queue.
func (s *Service) Reject(ctx context.Context, caller id.PrincipalID, index int) error {
	ctx, finish := s.begin(ctx, "reject")
	if err := requireCaller(caller); err != nil {
		return finish(err)
	}

	var removed models.Offer
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		var err error
		removed, err = l.SwapRemoveOffer(ctx, caller, index)
		return err
	})
	if err := finish(err); err != nil {
		return err
	}

	s.emitAudit(ctx, audit.Event{
		Principal:    caller,
		Action:       string(audit.EventOfferRejected),
		Subject:      strconv.Itoa(index),
		Counterparty: removed.Issuer,
		Policy:       removed.Policy.String(),
		Decision:     "rejected",
	})
	return nil
}

// Accept removes the offer at index from caller's queue and mints a record
// held by caller. Removal and mint commit together or not at all.
func (s *Service) Accept(ctx context.Context, caller id.PrincipalID, index int) (models.RecordView, error) {
	ctx, finish := s.begin(ctx, "accept")
	if err := requireCaller(caller); err != nil {
		return models.RecordView{}, finish(err)
	}

	var rec *models.Record
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		offer, err := l.SwapRemoveOffer(ctx, caller, index)
		if err != nil {
			return err
		}
		rec, err = s.mint(ctx, l, offer, caller)
		return err
	})
	if err := finish(err); err != nil {
		return models.RecordView{}, err
	}

	view := models.NewRecordView(rec, caller)
	s.metrics.IncRecordsMinted()
	s.emitAudit(ctx, audit.Event{
		Principal:    caller,
		Action:       string(audit.EventCredentialIssued),
		Subject:      rec.ID().String(),
		Counterparty: rec.Issuer(),
		Policy:       rec.Policy().String(),
		Decision:     "minted",
	})
	s.notifyIssued(ctx, events.NewIssued(rec, caller))
	return view, nil
}

// mint is the only creation path for a record. It must run inside a ledger
// transaction.
func (s *Service) mint(ctx context.Context, l store.Ledger, offer models.Offer, holder id.PrincipalID) (*models.Record, error) {
	recordID, err := l.AllocateRecordID(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := models.NewRecordBuilder().
		WithID(recordID).
		FromOffer(offer).
		WithMintedAt(s.now(ctx)).
		Build()
	if err != nil {
		return nil, err
	}
	if err := l.InsertRecord(ctx, rec); err != nil {
		return nil, err
	}
	if err := l.SetHolder(ctx, recordID, holder); err != nil {
		return nil, err
	}
	return rec, nil
}

// notifyIssued delivers the Issued notification for a committed mint. A
// failed delivery is logged, counted and audited; the mint stands.
func (s *Service) notifyIssued(ctx context.Context, event events.Issued) {
	err := s.publisher.PublishIssued(ctx, event)
	if err == nil {
		return
	}
	s.metrics.IncPublishFailure("issued")
	s.logger.ErrorContext(ctx, "failed to publish issued notification",
		"record_id", uint64(event.RecordID),
		"holder", event.Holder.String(),
		"error", err,
	)
	s.emitAudit(ctx, audit.Event{
		Principal: event.Holder,
		Action:    string(audit.EventNotificationFailed),
		Subject:   event.RecordID.String(),
		Decision:  "undelivered",
		Reason:    err.Error(),
	})
}
