// Package domain holds the typed identifiers shared across the registry.
//
// Principals are UUID based and parsed at trust boundaries so an invalid or
// nil identity never reaches the ledger. Record identifiers are plain counter
// values assigned by the ledger at mint time.
package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "soulcert/pkg/domain-errors"
)

// PrincipalID identifies an issuer, holder or offer recipient.
// The nil UUID means "no principal" and is never a valid caller.
type PrincipalID uuid.UUID

// NewPrincipalID returns a random principal identifier.
func NewPrincipalID() PrincipalID {
	return PrincipalID(uuid.New())
}

// ParsePrincipalID validates s and returns the principal it names.
func ParsePrincipalID(s string) (PrincipalID, error) {
	parsed, err := parseUUID(s, "principal ID")
	if err != nil {
		return PrincipalID{}, err
	}
	return PrincipalID(parsed), nil
}

func (p PrincipalID) String() string {
	return uuid.UUID(p).String()
}

// IsNil reports whether p is the absent principal.
func (p PrincipalID) IsNil() bool {
	return uuid.UUID(p) == uuid.Nil
}

func (p PrincipalID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PrincipalID) UnmarshalText(text []byte) error {
	parsed, err := ParsePrincipalID(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// RecordID identifies a minted credential record. Values are assigned from a
// strictly increasing counter and are never reused, including after a burn.
type RecordID uint64

// ParseRecordID parses the decimal form of a record identifier.
func ParseRecordID(s string) (RecordID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "record ID is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "record ID must be a non-negative integer")
	}
	return RecordID(v), nil
}

func (r RecordID) String() string {
	return strconv.FormatUint(uint64(r), 10)
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return parsed, nil
}
