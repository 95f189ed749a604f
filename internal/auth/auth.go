// Package auth issues and checks the bearer tokens directory-server and
// delivery-server use to confirm an HTTP or WebSocket caller is acting as
// the userName it claims, so publishing an init key or joining a group's
// WebSocket fan-out isn't open to anyone who guesses a name.
//
// A token is userName plus an HMAC-SHA256 tag over userName, keyed by a
// secret both services share. There is no separate session store: any
// holder of the shared secret can verify (or mint) a token offline, which
// is what lets directory-server and delivery-server run as independent
// processes without a third identity service between them.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken is returned when a bearer token is malformed, signed
// with a different secret, or issued for a different userName.
var ErrInvalidToken = errors.New("auth: invalid token")

// Authenticator mints and checks bearer tokens for a fixed secret.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// IssueToken returns a bearer token asserting userName. Callers obtain
// one out of band (the same registration step that proves userName's
// phone number or identity key, ahead of publishing into directory-server)
// and present it to both services afterward.
func (a *Authenticator) IssueToken(userName string) string {
	tag := a.tag(userName)
	return userName + "." + base64.RawURLEncoding.EncodeToString(tag)
}

// Verify reports whether token is a valid, unexpired assertion of
// userName. Tokens do not expire; revoking one means rotating the shared
// secret, which invalidates every token at once.
func (a *Authenticator) Verify(userName, token string) error {
	idx := strings.LastIndexByte(token, '.')
	if idx < 0 {
		return ErrInvalidToken
	}
	claimedUser, encodedTag := token[:idx], token[idx+1:]
	if claimedUser != userName {
		return ErrInvalidToken
	}

	got, err := base64.RawURLEncoding.DecodeString(encodedTag)
	if err != nil {
		return ErrInvalidToken
	}

	want := a.tag(userName)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrInvalidToken
	}
	return nil
}

func (a *Authenticator) tag(userName string) []byte {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(userName))
	return mac.Sum(nil)
}

// BearerToken extracts the token from a standard "Authorization: Bearer
// <token>" header value, or "" if the header is absent or malformed.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

// VerifyHeader is a convenience wrapper combining BearerToken and Verify,
// used directly by HTTP and WebSocket handlers.
func (a *Authenticator) VerifyHeader(userName, authorizationHeader string) error {
	token := BearerToken(authorizationHeader)
	if token == "" {
		return fmt.Errorf("auth: missing bearer token: %w", ErrInvalidToken)
	}
	return a.Verify(userName, token)
}
