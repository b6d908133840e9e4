package models

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "soulcert/pkg/domain-errors"
)

// BurnPolicy decides which principals may destroy a record.
// It is fixed when the offer is created and never changes after mint.
type BurnPolicy uint8

const (
	BurnIssuerOnly BurnPolicy = iota
	BurnOwnerOnly
	BurnBoth
	BurnNeither
)

var policyNames = [...]string{
	BurnIssuerOnly: "issuer_only",
	BurnOwnerOnly:  "owner_only",
	BurnBoth:       "both",
	BurnNeither:    "neither",
}

// ParseBurnPolicyCode decodes the numeric selector submitted with an offer.
// Only the codes 0 through 3 are defined.
func ParseBurnPolicyCode(code int) (BurnPolicy, error) {
	if code < int(BurnIssuerOnly) || code > int(BurnNeither) {
		return 0, dErrors.New(dErrors.CodeInvalidPolicyCode, fmt.Sprintf("policy code %d is not defined", code))
	}
	return BurnPolicy(code), nil
}

// ParseBurnPolicy accepts either a numeric code or a policy name.
func ParseBurnPolicy(s string) (BurnPolicy, error) {
	s = strings.TrimSpace(s)
	if code, err := strconv.Atoi(s); err == nil {
		return ParseBurnPolicyCode(code)
	}
	for i, name := range policyNames {
		if strings.EqualFold(s, name) {
			return BurnPolicy(i), nil
		}
	}
	return 0, dErrors.New(dErrors.CodeInvalidPolicyCode, fmt.Sprintf("policy %q is not defined", s))
}

func (p BurnPolicy) IsValid() bool {
	return p <= BurnNeither
}

// Code returns the numeric selector for p.
func (p BurnPolicy) Code() int {
	return int(p)
}

func (p BurnPolicy) String() string {
	if !p.IsValid() {
		return "unknown"
	}
	return policyNames[p]
}

func (p BurnPolicy) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidPolicyCode, "policy is not defined")
	}
	return []byte(p.String()), nil
}

func (p *BurnPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseBurnPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
