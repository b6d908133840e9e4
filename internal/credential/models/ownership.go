package models

import (
	id "soulcert/pkg/domain"
	dErrors "soulcert/pkg/domain-errors"
)

// CheckHolderTransition enforces non-transferability. The only legal holder
// changes are absent → holder (mint) and holder → absent (burn).
func CheckHolderTransition(from, to id.PrincipalID) error {
	switch {
	case from.IsNil() && !to.IsNil():
		return nil
	case !from.IsNil() && to.IsNil():
		return nil
	case from.IsNil() && to.IsNil():
		return dErrors.New(dErrors.CodeInvariantViolation, "holder change must set or clear a holder")
	default:
		return ErrTransferNotPermitted
	}
}
