package jwttoken

import (
	dErrors "transplant/pkg/domain-errors"
	authmw "transplant/pkg/platform/middleware/auth"
)

// Validator exposes a JWTService through the auth middleware's interface.
type Validator struct {
	service *JWTService
}

func NewValidator(service *JWTService) Validator {
	return Validator{service: service}
}

// ValidateToken verifies the signature and registered claims, then narrows
// the token to the fields the middleware turns into an actor. A subject that
// disagrees with user_id means the token was not minted by this service.
func (v Validator) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Subject != claims.UserID {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return &authmw.JWTClaims{
		UserID:     claims.UserID,
		Name:       claims.Name,
		Role:       claims.Role,
		HospitalID: claims.HospitalID,
	}, nil
}
