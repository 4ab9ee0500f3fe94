package storage

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

// DefaultSignedURLTTL matches the attachment link lifetime handed to clients.
const DefaultSignedURLTTL = 7 * 24 * time.Hour

var ErrBadSignature = errors.New("invalid or expired signature")

// Signer produces and verifies time-limited signed URLs for stored objects.
type Signer struct {
	secret  []byte
	baseURL string
}

// NewSigner constructs a Signer. baseURL is the externally reachable service
// base, without a trailing slash.
func NewSigner(secret, baseURL string) *Signer {
	return &Signer{secret: []byte(secret), baseURL: baseURL}
}

// SignedURL returns a URL granting read access to the object until expiry.
func (s *Signer) SignedURL(bucket, path string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	expires := time.Now().Add(ttl).Unix()
	sig := s.signature(bucket, path, expires)
	return fmt.Sprintf("%s/storage/%s/%s?expires=%d&sig=%s",
		s.baseURL, bucket, url.PathEscape(path), expires, sig)
}

// PublicURL returns an unsigned URL for objects in public buckets.
func (s *Signer) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/%s/%s", s.baseURL, bucket, url.PathEscape(path))
}

// Verify checks an expiry/signature pair for an object.
func (s *Signer) Verify(bucket, path, expiresStr, sig string) error {
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if time.Now().Unix() > expires {
		return ErrBadSignature
	}
	expected := s.signature(bucket, path, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

func (s *Signer) signature(bucket, path string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s/%s:%d", bucket, path, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
