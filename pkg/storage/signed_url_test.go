package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)

	token, expiresAt, err := signer.Generate("app-1", "certificates/file.pdf")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	appID, relPath, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "app-1", appID)
	assert.Equal(t, "certificates/file.pdf", relPath)
	assert.Equal(t, expiresAt.Unix(), parsedExpiry.Unix())
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)

	token, _, err := signer.Generate("app-1", "certificates/file.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 4)

	// swap in another application id
	forged := strings.Join([]string{"app-2", parts[1], parts[2], parts[3]}, ".")
	_, _, _, err = signer.Parse(forged)
	assert.Error(t, err)

	// garbage signature
	forged = strings.Join([]string{parts[0], parts[1], parts[2], "deadbeef"}, ".")
	_, _, _, err = signer.Parse(forged)
	assert.Error(t, err)

	_, _, _, err = signer.Parse("not-a-token")
	assert.Error(t, err)
}

func TestSignedURLRejectsWrongSecret(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)
	other := NewSignedURLSigner("another-secret", time.Hour)

	token, _, err := signer.Generate("app-1", "certificates/file.pdf")
	require.NoError(t, err)

	_, _, _, err = other.Parse(token)
	assert.Error(t, err)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", -time.Minute)
	signer.ttl = -time.Minute // NewSignedURLSigner clamps non-positive TTLs

	token, _, err := signer.Generate("app-1", "certificates/file.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	assert.Error(t, err)
}

func TestSignedURLRequiresInputs(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)

	_, _, err := signer.Generate("", "certificates/file.pdf")
	assert.Error(t, err)
	_, _, err = signer.Generate("app-1", "")
	assert.Error(t, err)

	empty := NewSignedURLSigner("", time.Hour)
	_, _, err = empty.Generate("app-1", "certificates/file.pdf")
	assert.Error(t, err)
}
