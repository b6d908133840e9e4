package jwttoken

import (
	"soulcert/internal/platform/middleware"
)

// ToMiddlewareClaims projects validated claims onto what RequireAuth needs.
func ToMiddlewareClaims(claims *Claims) (*middleware.JWTClaims, error) {
	principal, err := claims.Principal()
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		Principal: principal,
		TokenID:   claims.ID,
	}, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
