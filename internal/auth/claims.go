package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity claims shown to the user.
type Claims struct {
	Subject   string
	Issuer    string
	FHIRUser  string
	Name      string
	Email     string
	ExpiresAt time.Time
}

// ReadClaims decodes an ID token WITHOUT verifying its signature.
// Use it for display only; verification happens during code exchange when
// enabled.
func ReadClaims(rawIDToken string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	token, _, err := parser.ParseUnverified(rawIDToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	claims := &Claims{
		FHIRUser: stringClaim(mapClaims, "fhirUser"),
		Name:     stringClaim(mapClaims, "name"),
		Email:    stringClaim(mapClaims, "email"),
	}
	claims.Subject, _ = mapClaims.GetSubject()
	claims.Issuer, _ = mapClaims.GetIssuer()
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}
