package ws

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrBadCredential     = errors.New("credential rejected")
	ErrNoOrganization    = errors.New("credential carries no organization")
)

// Principal is the authenticated caller a verified credential resolves to.
type Principal struct {
	UserID string
	OrgID  string
}

// CredentialVerifier checks the bearer credential presented with the
// connection request. Verification runs before the socket upgrade; a
// failure closes the socket with a policy violation.
type CredentialVerifier interface {
	Verify(r *http.Request) (Principal, error)
}

// StaticVerifier accepts a single shared secret from the token query
// parameter and reads the caller identity from the request. It stands in
// where no identity provider is deployed; anything issuing real
// credentials slots in behind the same interface.
type StaticVerifier struct {
	Secret string
}

func (v StaticVerifier) Verify(r *http.Request) (Principal, error) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		return Principal{}, ErrMissingCredential
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.Secret)) != 1 {
		return Principal{}, ErrBadCredential
	}
	p := Principal{UserID: q.Get("user_id"), OrgID: q.Get("org_id")}
	if p.UserID == "" {
		p.UserID = "anonymous"
	}
	if p.OrgID == "" {
		return Principal{}, ErrNoOrganization
	}
	return p, nil
}
