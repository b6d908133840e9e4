package models

import (
	"time"

	id "soulcert/pkg/domain"
	dErrors "soulcert/pkg/domain-errors"
)

// Record is a minted, non-transferable credential.
//
// Invariants:
//   - ID, issuer, metadata ref and policy are set once by RecordBuilder and
//     have no mutators
//   - the holder lives in the ownership index, not on the record
type Record struct {
	id          id.RecordID
	issuer      id.PrincipalID
	metadataRef string
	policy      BurnPolicy
	mintedAt    time.Time
}

func (r *Record) ID() id.RecordID        { return r.id }
func (r *Record) Issuer() id.PrincipalID { return r.issuer }
func (r *Record) MetadataRef() string    { return r.metadataRef }
func (r *Record) Policy() BurnPolicy     { return r.policy }
func (r *Record) MintedAt() time.Time    { return r.mintedAt }

// RecordBuilder assembles a Record. Build returns a record whose fields can
// no longer change.
type RecordBuilder struct {
	rec   Record
	idSet bool
}

func NewRecordBuilder() *RecordBuilder {
	return &RecordBuilder{}
}

func (b *RecordBuilder) WithID(recordID id.RecordID) *RecordBuilder {
	b.rec.id = recordID
	b.idSet = true
	return b
}

func (b *RecordBuilder) WithIssuer(issuer id.PrincipalID) *RecordBuilder {
	b.rec.issuer = issuer
	return b
}

func (b *RecordBuilder) WithMetadataRef(ref string) *RecordBuilder {
	b.rec.metadataRef = ref
	return b
}

func (b *RecordBuilder) WithPolicy(policy BurnPolicy) *RecordBuilder {
	b.rec.policy = policy
	return b
}

func (b *RecordBuilder) WithMintedAt(t time.Time) *RecordBuilder {
	b.rec.mintedAt = t
	return b
}

// FromOffer copies issuer, metadata ref and policy from an accepted offer.
func (b *RecordBuilder) FromOffer(o Offer) *RecordBuilder {
	return b.WithIssuer(o.Issuer).WithMetadataRef(o.MetadataRef).WithPolicy(o.Policy)
}

func (b *RecordBuilder) Build() (*Record, error) {
	if !b.idSet {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record ID must be assigned")
	}
	if b.rec.issuer.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record issuer is required")
	}
	if !b.rec.policy.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidPolicyCode, "record policy is not defined")
	}
	rec := b.rec
	return &rec, nil
}

// RecordView is the full read model of a live record.
type RecordView struct {
	ID          id.RecordID    `json:"id"`
	Issuer      id.PrincipalID `json:"issuer"`
	Holder      id.PrincipalID `json:"holder"`
	MetadataRef string         `json:"metadata_ref"`
	Policy      BurnPolicy     `json:"policy"`
	MintedAt    time.Time      `json:"minted_at"`
}

func NewRecordView(rec *Record, holder id.PrincipalID) RecordView {
	return RecordView{
		ID:          rec.ID(),
		Issuer:      rec.Issuer(),
		Holder:      holder,
		MetadataRef: rec.MetadataRef(),
		Policy:      rec.Policy(),
		MintedAt:    rec.MintedAt(),
	}
}
