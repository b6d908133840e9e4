package store

import (
	"context"
	"slices"
	"sync"

	"soulcert/internal/credential/models"
	id "soulcert/pkg/domain"
	dErrors "soulcert/pkg/domain-errors"
	"soulcert/pkg/platform/sentinel"
)

// InMemory keeps the ledger in process memory. A single mutex makes the
// ledger single-writer; each transaction records an undo step per write and
// replays them in reverse when the callback fails.
type InMemory struct {
	mu      sync.Mutex
	offers  map[id.PrincipalID][]models.Offer
	records map[id.RecordID]*models.Record
	holders map[id.RecordID]id.PrincipalID
	held    map[id.PrincipalID]map[id.RecordID]struct{}
	nextID  id.RecordID
}

func NewInMemory() *InMemory {
	return &InMemory{
		offers:  make(map[id.PrincipalID][]models.Offer),
		records: make(map[id.RecordID]*models.Record),
		holders: make(map[id.RecordID]id.PrincipalID),
		held:    make(map[id.PrincipalID]map[id.RecordID]struct{}),
	}
}

func (s *InMemory) RunInTx(ctx context.Context, fn func(ledger Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s}
	defer func() { tx.closed = true }()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return nil
}

// Durable is false: record IDs restart at 0 with the process.
func (s *InMemory) Durable() bool {
	return false
}

// Health always succeeds for the in-memory ledger.
func (s *InMemory) Health(context.Context) error {
	return nil
}

type memoryTx struct {
	s      *InMemory
	undo   []func()
	closed bool
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) onUndo(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *memoryTx) check() error {
	if t.closed {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (t *memoryTx) AppendOffer(_ context.Context, recipient id.PrincipalID, offer models.Offer) (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	s := t.s
	s.offers[recipient] = append(s.offers[recipient], offer)
	slot := len(s.offers[recipient]) - 1
	t.onUndo(func() {
		q := s.offers[recipient]
		t.s.setQueue(recipient, q[:len(q)-1])
	})
	return slot, nil
}

func (t *memoryTx) CountOffers(_ context.Context, recipient id.PrincipalID) (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return len(t.s.offers[recipient]), nil
}

func (t *memoryTx) OfferAt(_ context.Context, recipient id.PrincipalID, index int) (models.Offer, error) {
	if err := t.check(); err != nil {
		return models.Offer{}, err
	}
	q := t.s.offers[recipient]
	if index < 0 || index >= len(q) {
		return models.Offer{}, sentinel.ErrOutOfRange
	}
	return q[index], nil
}

func (t *memoryTx) ListOffers(_ context.Context, recipient id.PrincipalID) ([]models.Offer, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return append([]models.Offer{}, t.s.offers[recipient]...), nil
}

func (t *memoryTx) SwapRemoveOffer(_ context.Context, recipient id.PrincipalID, index int) (models.Offer, error) {
	if err := t.check(); err != nil {
		return models.Offer{}, err
	}
	s := t.s
	q := s.offers[recipient]
	if index < 0 || index >= len(q) {
		return models.Offer{}, sentinel.ErrOutOfRange
	}
	removed := q[index]
	last := len(q) - 1
	q[index] = q[last]
	q[last] = models.Offer{}
	s.setQueue(recipient, q[:last])

	t.onUndo(func() {
		q := s.offers[recipient]
		if index == len(q) {
			q = append(q, removed)
		} else {
			moved := q[index]
			q[index] = removed
			q = append(q, moved)
		}
		s.offers[recipient] = q
	})
	return removed, nil
}

func (s *InMemory) setQueue(recipient id.PrincipalID, q []models.Offer) {
	if len(q) == 0 {
		delete(s.offers, recipient)
		return
	}
	s.offers[recipient] = q
}

func (t *memoryTx) AllocateRecordID(_ context.Context) (id.RecordID, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	s := t.s
	next := s.nextID
	s.nextID++
	t.onUndo(func() { s.nextID = next })
	return next, nil
}

func (t *memoryTx) InsertRecord(_ context.Context, rec *models.Record) error {
	if err := t.check(); err != nil {
		return err
	}
	s := t.s
	if _, exists := s.records[rec.ID()]; exists {
		return sentinel.ErrInvalidState
	}
	if rec.ID() >= s.nextID {
		return sentinel.ErrInvalidState
	}
	s.records[rec.ID()] = rec
	t.onUndo(func() { delete(s.records, rec.ID()) })
	return nil
}

func (t *memoryTx) FindRecord(_ context.Context, recordID id.RecordID) (*models.Record, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	rec, ok := t.s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec, nil
}

func (t *memoryTx) FindRecords(_ context.Context, recordIDs []id.RecordID) ([]*models.Record, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	out := make([]*models.Record, 0, len(recordIDs))
	for _, rid := range recordIDs {
		if rec, ok := t.s.records[rid]; ok {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b *models.Record) int {
		return compareIDs(a.ID(), b.ID())
	})
	return out, nil
}

func (t *memoryTx) DeleteRecord(_ context.Context, recordID id.RecordID) error {
	if err := t.check(); err != nil {
		return err
	}
	s := t.s
	rec, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if _, held := s.holders[recordID]; held {
		return sentinel.ErrInvalidState
	}
	delete(s.records, recordID)
	t.onUndo(func() { s.records[recordID] = rec })
	return nil
}

func (t *memoryTx) CountRecords(_ context.Context) (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	return len(t.s.records), nil
}

func (t *memoryTx) Holder(_ context.Context, recordID id.RecordID) (id.PrincipalID, error) {
	if err := t.check(); err != nil {
		return id.PrincipalID{}, err
	}
	holder, ok := t.s.holders[recordID]
	if !ok {
		return id.PrincipalID{}, sentinel.ErrNotFound
	}
	return holder, nil
}

func (t *memoryTx) SetHolder(_ context.Context, recordID id.RecordID, holder id.PrincipalID) error {
	if err := t.check(); err != nil {
		return err
	}
	s := t.s
	if _, ok := s.records[recordID]; !ok {
		return sentinel.ErrNotFound
	}
	current := s.holders[recordID]
	if err := models.CheckHolderTransition(current, holder); err != nil {
		return err
	}
	if holder.IsNil() {
		s.unassign(recordID, current)
		t.onUndo(func() { s.assign(recordID, current) })
		return nil
	}
	s.assign(recordID, holder)
	t.onUndo(func() { s.unassign(recordID, holder) })
	return nil
}

func (s *InMemory) assign(recordID id.RecordID, holder id.PrincipalID) {
	s.holders[recordID] = holder
	set, ok := s.held[holder]
	if !ok {
		set = make(map[id.RecordID]struct{})
		s.held[holder] = set
	}
	set[recordID] = struct{}{}
}

func (s *InMemory) unassign(recordID id.RecordID, holder id.PrincipalID) {
	delete(s.holders, recordID)
	if set, ok := s.held[holder]; ok {
		delete(set, recordID)
		if len(set) == 0 {
			delete(s.held, holder)
		}
	}
}

func (t *memoryTx) ListByHolder(_ context.Context, holder id.PrincipalID) ([]id.RecordID, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	set := t.s.held[holder]
	out := make([]id.RecordID, 0, len(set))
	for rid := range set {
		out = append(out, rid)
	}
	slices.SortFunc(out, compareIDs)
	return out, nil
}

func compareIDs(a, b id.RecordID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
