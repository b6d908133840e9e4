package service

import (
	"context"
	"errors"

	"soulcert/internal/credential/authz"
	"soulcert/internal/credential/cache"
	"soulcert/internal/credential/models"
	"soulcert/internal/credential/store"
	id "soulcert/pkg/domain"
	"soulcert/pkg/platform/audit"
)

// Burn destroys recordID when the record's policy lets caller do so. The ID
// is retired permanently.
func (s *Service) Burn(ctx context.Context, caller id.PrincipalID, recordID id.RecordID) error {
	ctx, finish := s.begin(ctx, "burn")
	if err := requireCaller(caller); err != nil {
		return finish(err)
	}

	var (
		target *models.Record
		holder id.PrincipalID
		denied bool
	)
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		var err error
		if target, err = l.FindRecord(ctx, recordID); err != nil {
			return err
		}
		if holder, err = l.Holder(ctx, recordID); err != nil {
			return err
		}
		if err := authz.AuthorizeBurn(caller, target.Issuer(), holder, target.Policy()); err != nil {
			denied = true
			return err
		}
		if err := l.SetHolder(ctx, recordID, id.PrincipalID{}); err != nil {
			return err
		}
		return l.DeleteRecord(ctx, recordID)
	})
	err = finish(err)

	if denied {
		s.emitAudit(ctx, audit.Event{
			Principal:    caller,
			Action:       string(audit.EventBurnDenied),
			Subject:      recordID.String(),
			Counterparty: holder,
			Policy:       target.Policy().String(),
			Decision:     "denied",
			Reason:       "policy does not permit caller",
		})
	}
	if err != nil {
		return err
	}

	s.metrics.IncRecordsBurned()
	if s.cache != nil {
		if err := s.cache.MarkBurned(ctx, recordID); err != nil {
			s.logger.ErrorContext(ctx, "failed to tombstone burned record in cache",
				"record_id", uint64(recordID),
				"error", err,
			)
		}
	}
	s.emitAudit(ctx, audit.Event{
		Principal:    caller,
		Action:       string(audit.EventCredentialBurned),
		Subject:      recordID.String(),
		Counterparty: holder,
		Policy:       target.Policy().String(),
		Decision:     "burned",
	})
	return nil
}

// Transfer always fails: UnknownRecord when recordID is not live, otherwise
// TransferNotPermitted. The ledger is never changed.
func (s *Service) Transfer(ctx context.Context, caller id.PrincipalID, recordID id.RecordID, to id.PrincipalID) error {
	ctx, finish := s.begin(ctx, "transfer")
	if err := requireCaller(caller); err != nil {
		return finish(err)
	}

	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		if _, err := l.FindRecord(ctx, recordID); err != nil {
			return err
		}
		if to.IsNil() {
			// Clearing the holder is reserved for burn.
			return models.ErrTransferNotPermitted
		}
		if err := l.SetHolder(ctx, recordID, to); err != nil {
			return err
		}
		return models.ErrTransferNotPermitted
	})
	err = finish(err)
	if errors.Is(err, models.ErrTransferNotPermitted) {
		s.emitAudit(ctx, audit.Event{
			Principal:    caller,
			Action:       string(audit.EventTransferRejected),
			Subject:      recordID.String(),
			Counterparty: to,
			Decision:     "rejected",
		})
	}
	return err
}

// RecordOf returns the full view of a live record.
func (s *Service) RecordOf(ctx context.Context, recordID id.RecordID) (models.RecordView, error) {
	ctx, finish := s.begin(ctx, "record_of")

	if s.cache != nil {
		view, err := s.cache.Get(ctx, recordID)
		switch {
		case err == nil:
			return view, finish(nil)
		case errors.Is(err, cache.ErrBurned):
			return models.RecordView{}, finish(models.ErrUnknownRecord)
		case !errors.Is(err, cache.ErrMiss):
			s.logger.WarnContext(ctx, "record cache lookup failed",
				"record_id", uint64(recordID),
				"error", err,
			)
		}
	}

	var view models.RecordView
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		rec, err := l.FindRecord(ctx, recordID)
		if err != nil {
			return err
		}
		holder, err := l.Holder(ctx, recordID)
		if err != nil {
			return err
		}
		view = models.NewRecordView(rec, holder)
		return nil
	})
	if err := finish(err); err != nil {
		return models.RecordView{}, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, view); err != nil {
			s.logger.WarnContext(ctx, "failed to cache record view",
				"record_id", uint64(recordID),
				"error", err,
			)
		}
	}
	return view, nil
}

func (s *Service) MetadataOf(ctx context.Context, recordID id.RecordID) (string, error) {
	view, err := s.RecordOf(ctx, recordID)
	return view.MetadataRef, err
}

func (s *Service) IssuerOf(ctx context.Context, recordID id.RecordID) (id.PrincipalID, error) {
	view, err := s.RecordOf(ctx, recordID)
	return view.Issuer, err
}

func (s *Service) PolicyOf(ctx context.Context, recordID id.RecordID) (models.BurnPolicy, error) {
	view, err := s.RecordOf(ctx, recordID)
	return view.Policy, err
}

func (s *Service) HolderOf(ctx context.Context, recordID id.RecordID) (id.PrincipalID, error) {
	view, err := s.RecordOf(ctx, recordID)
	return view.Holder, err
}

// BalanceOf counts the live records held by holder.
func (s *Service) BalanceOf(ctx context.Context, holder id.PrincipalID) (int, error) {
	ctx, finish := s.begin(ctx, "balance_of")

	var n int
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		ids, err := l.ListByHolder(ctx, holder)
		n = len(ids)
		return err
	})
	return n, finish(err)
}

// RecordsOf lists the records held by holder in ascending ID order.
func (s *Service) RecordsOf(ctx context.Context, holder id.PrincipalID) ([]models.RecordView, error) {
	ctx, finish := s.begin(ctx, "records_of")

	var views []models.RecordView
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		ids, err := l.ListByHolder(ctx, holder)
		if err != nil {
			return err
		}
		recs, err := l.FindRecords(ctx, ids)
		if err != nil {
			return err
		}
		views = make([]models.RecordView, 0, len(recs))
		for _, rec := range recs {
			views = append(views, models.NewRecordView(rec, holder))
		}
		return nil
	})
	return views, finish(err)
}

// RecordOfHolderByIndex returns the index-th record, in ascending ID order,
// held by holder.
func (s *Service) RecordOfHolderByIndex(ctx context.Context, holder id.PrincipalID, index int) (models.RecordView, error) {
	ctx, finish := s.begin(ctx, "record_of_holder_by_index")

	var view models.RecordView
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		ids, err := l.ListByHolder(ctx, holder)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(ids) {
			return models.ErrIndexOutOfRange
		}
		rec, err := l.FindRecord(ctx, ids[index])
		if err != nil {
			return err
		}
		view = models.NewRecordView(rec, holder)
		return nil
	})
	return view, finish(err)
}

// TotalRecords counts live records.
func (s *Service) TotalRecords(ctx context.Context) (int, error) {
	ctx, finish := s.begin(ctx, "total_records")

	var n int
	err := s.tx.RunInTx(ctx, func(l store.Ledger) error {
		var err error
		n, err = l.CountRecords(ctx)
		return err
	})
	return n, finish(err)
}
