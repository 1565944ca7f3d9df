// Package signing produces and checks HMAC signatures that bind a download
// link to its artifact and expiry instant.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Query parameter names carried by signed links.
const (
	ParamExpires   = "expires"
	ParamSignature = "signature"
)

var (
	// ErrMissing is returned when a link carries no signature or expiry.
	ErrMissing = errors.New("signature missing")
	// ErrInvalid is returned when the signature does not match.
	ErrInvalid = errors.New("signature invalid")
	// ErrExpired is returned when the signed expiry has passed.
	ErrExpired = errors.New("link expired")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for an artifact id and unix expiry.
func (s *Signer) Sign(id string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", id, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Query returns the expires/signature parameters for a link to id that
// stops working at expiresAt. The expiry is rounded up to the second so the
// link never dies before the artifact does.
func (s *Signer) Query(id string, expiresAt time.Time) url.Values {
	exp := expiresAt.Unix()
	if expiresAt.Nanosecond() > 0 {
		exp++
	}
	return url.Values{
		ParamExpires:   []string{strconv.FormatInt(exp, 10)},
		ParamSignature: []string{s.Sign(id, exp)},
	}
}

// Verify checks the parameters produced by Query against id at instant now.
func (s *Signer) Verify(id string, q url.Values, now time.Time) error {
	expires, signature := q.Get(ParamExpires), q.Get(ParamSignature)
	if expires == "" || signature == "" {
		return ErrMissing
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalid
	}
	// hmac.Equal performs constant-time comparison.
	if !hmac.Equal([]byte(s.Sign(id, exp)), []byte(signature)) {
		return ErrInvalid
	}
	if now.Unix() >= exp {
		return ErrExpired
	}
	return nil
}
