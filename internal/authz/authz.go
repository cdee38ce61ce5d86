// Package authz resolves the authenticated owner of a request.
package authz

import (
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned when no valid identity is present.
var ErrUnauthorized = errors.New("unauthorized")

// Message is the client-facing body text for ErrUnauthorized.
const Message = "Invalid access token!"

// DefaultTokenTTL is the lifetime of tokens minted by SignAccessToken.
const DefaultTokenTTL = 7 * 24 * time.Hour

const devBypassHeader = "x-user-sub"

// Verifier checks bearer tokens signed with a shared HS256 secret.
type Verifier struct {
	Secret []byte
	// DevBypass trusts the x-user-sub header. Local use only.
	DevBypass bool
}

// headerLookup returns the value of a header key from a map.
func headerLookup(h map[string]string, key string) string {
	if len(h) == 0 {
		return ""
	}
	lk := strings.ToLower(key)
	for k, v := range h {
		if strings.ToLower(k) == lk {
			return v
		}
	}
	return ""
}

// bearer extracts the token from an Authorization header value.
func bearer(auth string) string {
	auth = strings.TrimSpace(auth)
	if len(auth) < len("bearer ") || !strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[len("bearer "):])
}

// VerifyToken validates token and returns its subject.
func (v Verifier) VerifyToken(token string) (string, error) {
	if token == "" || len(v.Secret) == 0 {
		return "", ErrUnauthorized
	}
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// FromHeader resolves the owner from a header getter; it serves both the
// Lambda and the gin surfaces.
func (v Verifier) FromHeader(get func(string) string) (string, error) {
	if v.DevBypass {
		if sub := strings.TrimSpace(get(devBypassHeader)); sub != "" {
			return sub, nil
		}
	}
	return v.VerifyToken(bearer(get("Authorization")))
}

// FromAPIGWv2 extracts the owner from an HTTP API (v2) request. Claims of a
// JWT authorizer configured on the route win over the header.
func (v Verifier) FromAPIGWv2(req events.APIGatewayV2HTTPRequest) (string, error) {
	if a := req.RequestContext.Authorizer; a != nil {
		if a.JWT != nil {
			if sub := a.JWT.Claims["sub"]; sub != "" {
				return sub, nil
			}
		}
		if sub, ok := a.Lambda["sub"].(string); ok && sub != "" {
			return sub, nil
		}
	}
	return v.FromHeader(func(k string) string { return headerLookup(req.Headers, k) })
}

// SignAccessToken mints an HS256 token for sub valid for ttl.
func SignAccessToken(sub string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return t.SignedString(secret)
}
