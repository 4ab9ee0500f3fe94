package storage

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLVerifies(t *testing.T) {
	signer := NewSigner("secret", "http://localhost:8083")

	raw := signer.SignedURL(BucketChatUploads, "g1/photo.png", time.Hour)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(parsed.Path, "/storage/"+BucketChatUploads+"/"))
	require.NoError(t, signer.Verify(BucketChatUploads, "g1/photo.png",
		parsed.Query().Get("expires"), parsed.Query().Get("sig")))
}

func TestVerifyRejectsTamperedPath(t *testing.T) {
	signer := NewSigner("secret", "http://localhost:8083")

	raw := signer.SignedURL(BucketChatUploads, "g1/photo.png", time.Hour)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	err = signer.Verify(BucketChatUploads, "g1/other.png",
		parsed.Query().Get("expires"), parsed.Query().Get("sig"))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer := NewSigner("secret", "http://localhost:8083")

	expired := time.Now().Add(-time.Minute).Unix()
	sig := signer.signature(BucketChatUploads, "g1/photo.png", expired)
	err := signer.Verify(BucketChatUploads, "g1/photo.png", strconv.FormatInt(expired, 10), sig)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := NewSigner("secret", "http://localhost:8083")
	other := NewSigner("other-secret", "http://localhost:8083")

	raw := signer.SignedURL(BucketChatUploads, "g1/photo.png", time.Hour)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	err = other.Verify(BucketChatUploads, "g1/photo.png",
		parsed.Query().Get("expires"), parsed.Query().Get("sig"))
	assert.ErrorIs(t, err, ErrBadSignature)
}
