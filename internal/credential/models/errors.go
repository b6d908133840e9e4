package models

import dErrors "soulcert/pkg/domain-errors"

// Registry error kinds. Compare with errors.Is or dErrors.HasCode; both match by code.
var (
	ErrIndexOutOfRange      = dErrors.New(dErrors.CodeIndexOutOfRange, "offer index out of range")
	ErrUnknownRecord        = dErrors.New(dErrors.CodeUnknownRecord, "no live record with this ID")
	ErrBurnNotAuthorized    = dErrors.New(dErrors.CodeBurnNotAuthorized, "caller may not burn this record")
	ErrTransferNotPermitted = dErrors.New(dErrors.CodeTransferNotPermitted, "records cannot change holder")
)
