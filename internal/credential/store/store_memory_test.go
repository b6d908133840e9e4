package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"soulcert/internal/credential/models"
	"soulcert/internal/credential/store"
	id "soulcert/pkg/domain"
	dErrors "soulcert/pkg/domain-errors"
	"soulcert/pkg/platform/sentinel"
)

type InMemoryLedgerSuite struct {
	suite.Suite
	store *store.InMemory
	ctx   context.Context
}

func TestInMemoryLedgerSuite(t *testing.T) {
	suite.Run(t, new(InMemoryLedgerSuite))
}

func (s *InMemoryLedgerSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.ctx = context.Background()
}

var errAbort = errors.New("abort")

func offer(issuer id.PrincipalID, ref string) models.Offer {
	return models.Offer{Issuer: issuer, MetadataRef: ref, Policy: models.BurnBoth}
}

func refs(offers []models.Offer) []string {
	out := make([]string, len(offers))
	for i, o := range offers {
		out[i] = o.MetadataRef
	}
	return out
}

func (s *InMemoryLedgerSuite) listOffers(recipient id.PrincipalID) []models.Offer {
	var out []models.Offer
	s.Require().NoError(s.store.RunInTx(s.ctx, func(l store.Ledger) error {
		var err error
		out, err = l.ListOffers(s.ctx, recipient)
		return err
	}))
	return out
}

func (s *InMemoryLedgerSuite) mint(holder id.PrincipalID) id.RecordID {
	var rid id.RecordID
	s.Require().NoError(s.store.RunInTx(s.ctx, func(l store.Ledger) error {
		var err error
		rid, err = l.AllocateRecordID(s.ctx)
		if err != nil {
			return err
		}
		rec, err := models.NewRecordBuilder().
			WithID(rid).
			WithIssuer(id.NewPrincipalID()).
			WithMetadataRef("ipfs://doc").
			WithPolicy(models.BurnBoth).
			WithMintedAt(time.Now()).
			Build()
		if err != nil {
			return err
		}
		if err := l.InsertRecord(s.ctx, rec); err != nil {
			return err
		}
		return l.SetHolder(s.ctx, rid, holder)
	}))
	return rid
}

func (s *InMemoryLedgerSuite) TestOfferQueue() {
	recipient := id.NewPrincipalID()
	issuer := id.NewPrincipalID()

	s.Run("append returns the slot", func() {
		err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			for i, ref := range []string{"a", "b", "c"} {
				slot, err := l.AppendOffer(s.ctx, recipient, offer(issuer, ref))
				s.Require().NoError(err)
				s.Equal(i, slot)
			}
			return nil
		})
		s.Require().NoError(err)
		s.Equal([]string{"a", "b", "c"}, refs(s.listOffers(recipient)))
	})

	s.Run("positional lookup is bounded", func() {
		err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			n, err := l.CountOffers(s.ctx, recipient)
			s.Require().NoError(err)
			s.Equal(3, n)

			got, err := l.OfferAt(s.ctx, recipient, 1)
			s.Require().NoError(err)
			s.Equal("b", got.MetadataRef)

			_, err = l.OfferAt(s.ctx, recipient, 3)
			s.ErrorIs(err, sentinel.ErrOutOfRange)
			_, err = l.OfferAt(s.ctx, recipient, -1)
			s.ErrorIs(err, sentinel.ErrOutOfRange)

			n, err = l.CountOffers(s.ctx, id.NewPrincipalID())
			s.Require().NoError(err)
			s.Zero(n)
			return nil
		})
		s.Require().NoError(err)
	})

	s.Run("swap remove moves the last offer into the hole", func() {
		err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			removed, err := l.SwapRemoveOffer(s.ctx, recipient, 0)
			s.Require().NoError(err)
			s.Equal("a", removed.MetadataRef)
			return nil
		})
		s.Require().NoError(err)
		s.Equal([]string{"c", "b"}, refs(s.listOffers(recipient)))
	})

	s.Run("swap remove of the last slot", func() {
		err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			removed, err := l.SwapRemoveOffer(s.ctx, recipient, 1)
			s.Require().NoError(err)
			s.Equal("b", removed.MetadataRef)
			_, err = l.SwapRemoveOffer(s.ctx, recipient, 1)
			s.ErrorIs(err, sentinel.ErrOutOfRange)
			return nil
		})
		s.Require().NoError(err)
		s.Equal([]string{"c"}, refs(s.listOffers(recipient)))
	})
}

func (s *InMemoryLedgerSuite) TestRollbackRestoresOffers() {
	recipient := id.NewPrincipalID()
	issuer := id.NewPrincipalID()
	s.Require().NoError(s.store.RunInTx(s.ctx, func(l store.Ledger) error {
		for _, ref := range []string{"a", "b", "c", "d"} {
			if _, err := l.AppendOffer(s.ctx, recipient, offer(issuer, ref)); err != nil {
				return err
			}
		}
		return nil
	}))

	err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
		if _, err := l.SwapRemoveOffer(s.ctx, recipient, 1); err != nil {
			return err
		}
		if _, err := l.AppendOffer(s.ctx, recipient, offer(issuer, "e")); err != nil {
			return err
		}
		if _, err := l.SwapRemoveOffer(s.ctx, recipient, 0); err != nil {
			return err
		}
		if _, err := l.SwapRemoveOffer(s.ctx, recipient, 2); err != nil {
			return err
		}
		return errAbort
	})
	s.ErrorIs(err, errAbort)
	s.Equal([]string{"a", "b", "c", "d"}, refs(s.listOffers(recipient)))
}

func (s *InMemoryLedgerSuite) TestRollbackDrainedQueue() {
	recipient := id.NewPrincipalID()
	s.Require().NoError(s.store.RunInTx(s.ctx, func(l store.Ledger) error {
		_, err := l.AppendOffer(s.ctx, recipient, offer(id.NewPrincipalID(), "only"))
		return err
	}))

	err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
		if _, err := l.SwapRemoveOffer(s.ctx, recipient, 0); err != nil {
			return err
		}
		return errAbort
	})
	s.ErrorIs(err, errAbort)
	s.Equal([]string{"only"}, refs(s.listOffers(recipient)))
}

func (s *InMemoryLedgerSuite) TestRecordIDsAreNeverReused() {
	holder := id.NewPrincipalID()
	first := s.mint(holder)
	s.Equal(id.RecordID(0), first)

	err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
		rid, err := l.AllocateRecordID(s.ctx)
		s.Require().NoError(err)
		s.Equal(id.RecordID(1), rid)
		return errAbort
	})
	s.ErrorIs(err, errAbort)

	second := s.mint(holder)
	s.Equal(id.RecordID(1), second, "aborted allocation is returned to the counter")

	s.burn(first)
	third := s.mint(holder)
	s.Equal(id.RecordID(2), third, "burned IDs are not reissued")
}

func (s *InMemoryLedgerSuite) burn(rid id.RecordID) {
	s.Require().NoError(s.store.RunInTx(s.ctx, func(l store.Ledger) error {
		if err := l.SetHolder(s.ctx, rid, id.PrincipalID{}); err != nil {
			return err
		}
		return l.DeleteRecord(s.ctx, rid)
	}))
}

func (s *InMemoryLedgerSuite) TestOwnership() {
	alice := id.NewPrincipalID()
	bob := id.NewPrincipalID()
	r0 := s.mint(alice)
	r1 := s.mint(bob)
	r2 := s.mint(alice)

	s.Run("holdings are ascending", func() {
		s.Require().NoError(s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			ids, err := l.ListByHolder(s.ctx, alice)
			s.Require().NoError(err)
			s.Equal([]id.RecordID{r0, r2}, ids)

			ids, err = l.ListByHolder(s.ctx, id.NewPrincipalID())
			s.Require().NoError(err)
			s.Empty(ids)
			return nil
		}))
	})

	s.Run("holder cannot change to another principal", func() {
		err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			return l.SetHolder(s.ctx, r1, alice)
		})
		s.True(dErrors.HasCode(err, dErrors.CodeTransferNotPermitted))

		s.Require().NoError(s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			holder, err := l.Holder(s.ctx, r1)
			s.Require().NoError(err)
			s.Equal(bob, holder)
			return nil
		}))
	})

	s.Run("record with a holder cannot be deleted", func() {
		err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			return l.DeleteRecord(s.ctx, r1)
		})
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("burn clears the record and the holding", func() {
		s.burn(r0)
		s.Require().NoError(s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			_, err := l.FindRecord(s.ctx, r0)
			s.ErrorIs(err, sentinel.ErrNotFound)
			_, err = l.Holder(s.ctx, r0)
			s.ErrorIs(err, sentinel.ErrNotFound)
			ids, err := l.ListByHolder(s.ctx, alice)
			s.Require().NoError(err)
			s.Equal([]id.RecordID{r2}, ids)
			n, err := l.CountRecords(s.ctx)
			s.Require().NoError(err)
			s.Equal(2, n)
			return nil
		}))
	})

	s.Run("burned record has no holder to clear", func() {
		err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			return l.SetHolder(s.ctx, r0, id.PrincipalID{})
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("batch lookup skips missing records", func() {
		s.Require().NoError(s.store.RunInTx(s.ctx, func(l store.Ledger) error {
			recs, err := l.FindRecords(s.ctx, []id.RecordID{r2, r0, r1})
			s.Require().NoError(err)
			s.Require().Len(recs, 2)
			s.Equal(r1, recs[0].ID())
			s.Equal(r2, recs[1].ID())
			return nil
		}))
	})
}

func (s *InMemoryLedgerSuite) TestRollbackRestoresOwnership() {
	alice := id.NewPrincipalID()
	rid := s.mint(alice)

	err := s.store.RunInTx(s.ctx, func(l store.Ledger) error {
		if err := l.SetHolder(s.ctx, rid, id.PrincipalID{}); err != nil {
			return err
		}
		if err := l.DeleteRecord(s.ctx, rid); err != nil {
			return err
		}
		return errAbort
	})
	s.ErrorIs(err, errAbort)

	s.Require().NoError(s.store.RunInTx(s.ctx, func(l store.Ledger) error {
		holder, err := l.Holder(s.ctx, rid)
		s.Require().NoError(err)
		s.Equal(alice, holder)
		rec, err := l.FindRecord(s.ctx, rid)
		s.Require().NoError(err)
		s.Equal(rid, rec.ID())
		return nil
	}))
}

func TestInMemory_LedgerUnusableAfterTx(t *testing.T) {
	s := store.NewInMemory()
	ctx := context.Background()

	var leaked store.Ledger
	require.NoError(t, s.RunInTx(ctx, func(l store.Ledger) error {
		leaked = l
		return nil
	}))

	_, err := leaked.AppendOffer(ctx, id.NewPrincipalID(), offer(id.NewPrincipalID(), "late"))
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestInMemory_CancelledContext(t *testing.T) {
	s := store.NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunInTx(ctx, func(store.Ledger) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestIsDurable(t *testing.T) {
	assert.False(t, store.IsDurable(store.NewInMemory()), "record IDs restart at 0 with the process")
	assert.True(t, store.IsDurable(store.NewPostgres(nil)))
	assert.False(t, store.IsDurable(nil))
}
