// Package auth verifies the bearer credential a client presents when it opens
// the signaling socket.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
)

// Wire reasons for a refused handshake.
const (
	ReasonNoCredential      = "NoCredential"
	ReasonInvalidCredential = "InvalidCredential"
	ReasonExpiredCredential = "ExpiredCredential"
	ReasonSubjectNotFound   = "SubjectNotFound"
)

// Claims is the HS256 access token body; sub carries the user id.
type Claims struct {
	jwt.StandardClaims
}

type Verifier struct {
	secret []byte
	issuer string
	users  core.UserDirectory
}

func NewVerifier(secret []byte, issuer string, users core.UserDirectory) *Verifier {
	return &Verifier{secret: secret, issuer: issuer, users: users}
}

// Verify resolves a credential into an identity. It never mutates state.
func (v *Verifier) Verify(ctx context.Context, credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Identity{}, domain.ErrMissingCredential
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		var vErr *jwt.ValidationError
		if errors.As(err, &vErr) && vErr.Errors == jwt.ValidationErrorExpired {
			return domain.Identity{}, domain.ErrExpiredCredential
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrMalformedCredential, err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return domain.Identity{}, fmt.Errorf("%w: issuer mismatch", domain.ErrMalformedCredential)
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: empty subject", domain.ErrMalformedCredential)
	}

	user, err := v.users.User(ctx, domain.UserID(claims.Subject))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Identity{}, domain.ErrSubjectNotFound
		}
		return domain.Identity{}, fmt.Errorf("lookup subject: %w", err)
	}

	ident := user.Identity()
	ident.Claims = map[string]any{
		"sub": claims.Subject,
		"iss": claims.Issuer,
		"iat": claims.IssuedAt,
		"exp": claims.ExpiresAt,
	}
	return ident, nil
}

// Issue mints a token for uid. Used by dev tooling and tests; account
// management lives elsewhere.
func (v *Verifier) Issue(uid domain.UserID, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   string(uid),
			Issuer:    v.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Reason maps a Verify error to its wire reason. ok is false for errors that
// are not the client's fault.
func Reason(err error) (reason string, ok bool) {
	switch {
	case errors.Is(err, domain.ErrMissingCredential):
		return ReasonNoCredential, true
	case errors.Is(err, domain.ErrExpiredCredential):
		return ReasonExpiredCredential, true
	case errors.Is(err, domain.ErrSubjectNotFound):
		return ReasonSubjectNotFound, true
	case errors.Is(err, domain.ErrMalformedCredential):
		return ReasonInvalidCredential, true
	default:
		return "", false
	}
}
