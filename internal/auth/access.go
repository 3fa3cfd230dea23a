// Package auth verifies learner access tokens from the account backend and
// handles admin sign-in.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the account an access token belongs to.
type Identity struct {
	UserID   string
	Email    string
	FullName string
}

// AccessClaims are the claims the account backend puts in access tokens.
type AccessClaims struct {
	Email        string `json:"email,omitempty"`
	UserMetadata struct {
		FullName string `json:"full_name,omitempty"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// AccessVerifier checks HS256 access tokens.
type AccessVerifier struct {
	secret []byte
	issuer string
}

// NewAccessVerifier creates a verifier. issuer is optional.
func NewAccessVerifier(secret, issuer string) (*AccessVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("access token secret is required")
	}
	return &AccessVerifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify validates the token and returns its identity.
func (v *AccessVerifier) Verify(tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer "))
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	// Admin session tokens may share the secret but never sign a learner in.
	if slices.Contains(claims.Audience, adminAudience) {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:   claims.Subject,
		Email:    claims.Email,
		FullName: claims.UserMetadata.FullName,
	}, nil
}
