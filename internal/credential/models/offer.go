package models

import (
	id "soulcert/pkg/domain"
	dErrors "soulcert/pkg/domain-errors"
)

// Offer is a pending proposal to mint a record for the recipient whose queue
// holds it. The recipient is implied by the queue and is not stored here.
type Offer struct {
	Issuer      id.PrincipalID `json:"issuer"`
	MetadataRef string         `json:"metadata_ref"`
	Policy      BurnPolicy     `json:"policy"`
}

// NewOffer validates the offer fields and decodes the policy selector.
// Duplicate offers from the same issuer are allowed.
func NewOffer(issuer id.PrincipalID, metadataRef string, policyCode int) (Offer, error) {
	if issuer.IsNil() {
		return Offer{}, dErrors.New(dErrors.CodeUnauthorized, "issuer is required")
	}
	policy, err := ParseBurnPolicyCode(policyCode)
	if err != nil {
		return Offer{}, err
	}
	return Offer{Issuer: issuer, MetadataRef: metadataRef, Policy: policy}, nil
}
