// Package authz decides who may burn a record.
//
// The decision is a pure function of the caller and the record's stored
// issuer, holder and policy. There is no delegation, approval or override.
package authz

import (
	"soulcert/internal/credential/models"
	id "soulcert/pkg/domain"
)

// CanBurn reports whether caller may destroy a record minted by issuer,
// held by holder, under policy.
//
//	IssuerOnly  issuer
//	OwnerOnly   holder
//	Both        issuer or holder
//	Neither     no one
func CanBurn(caller, issuer, holder id.PrincipalID, policy models.BurnPolicy) bool {
	if caller.IsNil() {
		return false
	}
	switch policy {
	case models.BurnIssuerOnly:
		return caller == issuer
	case models.BurnOwnerOnly:
		return caller == holder
	case models.BurnBoth:
		return caller == issuer || caller == holder
	default:
		return false
	}
}

// AuthorizeBurn returns ErrBurnNotAuthorized when CanBurn is false.
func AuthorizeBurn(caller, issuer, holder id.PrincipalID, policy models.BurnPolicy) error {
	if !CanBurn(caller, issuer, holder, policy) {
		return models.ErrBurnNotAuthorized
	}
	return nil
}
