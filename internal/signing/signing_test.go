package signing

import (
	"net/url"
	"testing"
	"time"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	sig := s.Sign("converted_1.pdf", 1700000000)
	if len(sig) != 64 {
		t.Fatalf("expected hex sha256 signature, got %q", sig)
	}
	if sig != s.Sign("converted_1.pdf", 1700000000) {
		t.Fatalf("expected deterministic signature")
	}
	if sig == s.Sign("converted_2.pdf", 1700000000) {
		t.Fatalf("expected signature to depend on id")
	}
	if sig == NewSigner([]byte("other")).Sign("converted_1.pdf", 1700000000) {
		t.Fatalf("expected signature to depend on secret")
	}
}

func TestQueryRoundsExpiryUp(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	q := s.Query("a.pdf", time.Unix(1700000000, 250_000_000))
	if got := q.Get(ParamExpires); got != "1700000001" {
		t.Fatalf("expected expiry rounded up, got %s", got)
	}
	q = s.Query("a.pdf", time.Unix(1700000000, 0))
	if got := q.Get(ParamExpires); got != "1700000000" {
		t.Fatalf("expected whole-second expiry kept, got %s", got)
	}
}

func TestVerify(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	expiresAt := time.Unix(1700000300, 0)
	q := s.Query("a.pdf", expiresAt)

	if err := s.Verify("a.pdf", q, expiresAt.Add(-time.Minute)); err != nil {
		t.Fatalf("expected valid link, got %v", err)
	}
	if err := s.Verify("b.pdf", q, expiresAt.Add(-time.Minute)); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for wrong id, got %v", err)
	}
	if err := s.Verify("a.pdf", q, expiresAt); err != ErrExpired {
		t.Fatalf("expected ErrExpired at expiry, got %v", err)
	}
	tampered := url.Values{ParamExpires: {"1800000000"}, ParamSignature: q[ParamSignature]}
	if err := s.Verify("a.pdf", tampered, expiresAt.Add(-time.Minute)); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for extended expiry, got %v", err)
	}
	if err := s.Verify("a.pdf", url.Values{}, expiresAt); err != ErrMissing {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
	garbage := url.Values{ParamExpires: {"soon"}, ParamSignature: {"x"}}
	if err := s.Verify("a.pdf", garbage, expiresAt); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for unparsable expiry, got %v", err)
	}
}
