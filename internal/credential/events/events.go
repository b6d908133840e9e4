// Package events delivers Issued notifications after a mint commits.
//
// Delivery happens outside the ledger transaction. A publisher error never
// undoes a mint; the service logs it, counts it and moves on.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"soulcert/internal/credential/models"
	id "soulcert/pkg/domain"
)

// Issued announces a newly minted credential.
type Issued struct {
	RecordID    id.RecordID       `json:"record_id"`
	Issuer      id.PrincipalID    `json:"issuer"`
	Holder      id.PrincipalID    `json:"holder"`
	MetadataRef string            `json:"metadata_ref"`
	Policy      models.BurnPolicy `json:"policy"`
	MintedAt    time.Time         `json:"minted_at"`
}

// NewIssued builds the notification for rec minted to holder.
func NewIssued(rec *models.Record, holder id.PrincipalID) Issued {
	return Issued{
		RecordID:    rec.ID(),
		Issuer:      rec.Issuer(),
		Holder:      holder,
		MetadataRef: rec.MetadataRef(),
		Policy:      rec.Policy(),
		MintedAt:    rec.MintedAt(),
	}
}

func (e Issued) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher is a sink for Issued notifications.
type Publisher interface {
	PublishIssued(ctx context.Context, event Issued) error
}

// Memory keeps published events in order. It is used in tests and as the
// sink of last resort when nothing else is configured.
type Memory struct {
	mu     sync.Mutex
	events []Issued
	err    error
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) PublishIssued(_ context.Context, event Issued) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

// FailWith makes subsequent publishes return err. Nil restores delivery.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Issued {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Issued{}, m.events...)
}

// FanOut publishes to every sink and joins their errors.
type FanOut []Publisher

func (f FanOut) PublishIssued(ctx context.Context, event Issued) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishIssued(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
