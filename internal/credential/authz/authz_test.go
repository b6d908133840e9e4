package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"soulcert/internal/credential/models"
	id "soulcert/pkg/domain"
)

func TestCanBurnTable(t *testing.T) {
	issuer := id.NewPrincipalID()
	holder := id.NewPrincipalID()
	stranger := id.NewPrincipalID()

	tests := []struct {
		policy   models.BurnPolicy
		issuerOK bool
		holderOK bool
	}{
		{models.BurnIssuerOnly, true, false},
		{models.BurnOwnerOnly, false, true},
		{models.BurnBoth, true, true},
		{models.BurnNeither, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			assert.Equal(t, tt.issuerOK, CanBurn(issuer, issuer, holder, tt.policy), "issuer")
			assert.Equal(t, tt.holderOK, CanBurn(holder, issuer, holder, tt.policy), "holder")
			assert.False(t, CanBurn(stranger, issuer, holder, tt.policy), "stranger")
			assert.False(t, CanBurn(id.PrincipalID{}, issuer, holder, tt.policy), "anonymous")
		})
	}
}

func TestCanBurn_SelfIssued(t *testing.T) {
	self := id.NewPrincipalID()
	assert.True(t, CanBurn(self, self, self, models.BurnIssuerOnly))
	assert.True(t, CanBurn(self, self, self, models.BurnOwnerOnly))
	assert.False(t, CanBurn(self, self, self, models.BurnNeither))
}

func TestCanBurn_UndefinedPolicyDenies(t *testing.T) {
	p := id.NewPrincipalID()
	assert.False(t, CanBurn(p, p, p, models.BurnPolicy(42)))
}

func TestAuthorizeBurn(t *testing.T) {
	issuer := id.NewPrincipalID()
	holder := id.NewPrincipalID()
	assert.NoError(t, AuthorizeBurn(holder, issuer, holder, models.BurnOwnerOnly))
	assert.ErrorIs(t, AuthorizeBurn(issuer, issuer, holder, models.BurnOwnerOnly), models.ErrBurnNotAuthorized)
}
