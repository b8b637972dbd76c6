package realtime

import (
	"fmt"
	"strings"

	"korty/internal/apperr"
	"korty/internal/directory"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator turns a bearer credential into a capability. It fails
// closed: any defect in the credential rejects the connection before a
// single room is joined.
type Authenticator struct {
	secret    []byte
	directory *directory.Registry
}

func NewAuthenticator(secret string, dir *directory.Registry) *Authenticator {
	return &Authenticator{secret: []byte(secret), directory: dir}
}

// Authenticate validates the raw credential and resolves the capability.
// Empty, whitespace-only or non-JWT-shaped input is rejected before the
// token parser runs at all.
func (a *Authenticator) Authenticate(credential string) (*Capability, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return nil, apperr.Unauthorized("missing credential")
	}
	if strings.Count(credential, ".") != 2 || strings.ContainsAny(credential, " \t\r\n") {
		return nil, apperr.Unauthorized("malformed credential")
	}

	token, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Unauthorized("invalid credential").WithCause(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperr.Unauthorized("invalid credential")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, apperr.Unauthorized("credential has no subject")
	}

	// Adminship comes from the directory, never from token claims.
	return ResolveCapability(a.directory, sub), nil
}
