package handler

import (
	"time"

	"soulcert/internal/credential/models"
	id "soulcert/pkg/domain"
	"soulcert/pkg/platform/audit"
)

// CreateOfferRequest is the body of POST /v1/offers. Policy is the numeric
// burn policy code (0 IssuerOnly, 1 OwnerOnly, 2 Both, 3 Neither).
type CreateOfferRequest struct {
	Recipient   string `json:"recipient"`
	MetadataRef string `json:"metadata_ref"`
	Policy      *int   `json:"policy"`
}

type TransferRequest struct {
	To string `json:"to"`
}

type OfferResponse struct {
	Index       int               `json:"index"`
	Issuer      id.PrincipalID    `json:"issuer"`
	MetadataRef string            `json:"metadata_ref"`
	Policy      models.BurnPolicy `json:"policy"`
	PolicyCode  int               `json:"policy_code"`
}

func toOfferResponse(index int, o models.Offer) OfferResponse {
	return OfferResponse{
		Index:       index,
		Issuer:      o.Issuer,
		MetadataRef: o.MetadataRef,
		Policy:      o.Policy,
		PolicyCode:  o.Policy.Code(),
	}
}

type OfferListResponse struct {
	Count  int             `json:"count"`
	Offers []OfferResponse `json:"offers"`
}

type RecordResponse struct {
	ID          id.RecordID       `json:"id"`
	Issuer      id.PrincipalID    `json:"issuer"`
	Holder      id.PrincipalID    `json:"holder"`
	MetadataRef string            `json:"metadata_ref"`
	Policy      models.BurnPolicy `json:"policy"`
	PolicyCode  int               `json:"policy_code"`
	MintedAt    time.Time         `json:"minted_at"`
}

func toRecordResponse(v models.RecordView) RecordResponse {
	return RecordResponse{
		ID:          v.ID,
		Issuer:      v.Issuer,
		Holder:      v.Holder,
		MetadataRef: v.MetadataRef,
		Policy:      v.Policy,
		PolicyCode:  v.Policy.Code(),
		MintedAt:    v.MintedAt,
	}
}

type HoldingsResponse struct {
	Holder  id.PrincipalID   `json:"holder"`
	Balance int              `json:"balance"`
	Records []RecordResponse `json:"records"`
}

type AuditEventResponse struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Subject      string    `json:"subject,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Policy       string    `json:"policy,omitempty"`
	Decision     string    `json:"decision,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

func toAuditResponse(events []audit.Event) []AuditEventResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		r := AuditEventResponse{
			Timestamp: e.Timestamp,
			Action:    e.Action,
			Subject:   e.Subject,
			Policy:    e.Policy,
			Decision:  e.Decision,
			Reason:    e.Reason,
		}
		if !e.Counterparty.IsNil() {
			r.Counterparty = e.Counterparty.String()
		}
		out = append(out, r)
	}
	return out
}
