package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewManager(priv, &priv.PublicKey, Config{
		Issuer:   "loadboard",
		Audience: "loadboard-app",
		TTL:      ttl,
		KID:      "test",
	})
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := testManager(t, time.Hour)

	token, exp, err := m.Generator.GenerateAccessToken("user-1", "sess-1", "a@x.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.Verifier.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	m := testManager(t, time.Hour)

	refresh, err := m.Generator.GenerateRefreshToken("user-1", "sess-1", 24*time.Hour)
	require.NoError(t, err)

	_, err = m.Verifier.VerifyAccessToken(refresh)

	assert.ErrorIs(t, err, ErrWrongPurpose)

	claims, err := m.Verifier.VerifyRefreshToken(refresh, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	_, err = m.Verifier.VerifyRefreshToken(refresh, "sess-2")
	assert.ErrorIs(t, err, ErrSessionMismatch)
}

func TestVerifyRejectsForeignIssuerAndKey(t *testing.T) {
	m := testManager(t, time.Hour)
	other := testManager(t, time.Hour)

	token, _, err := other.Generator.GenerateAccessToken("user-1", "sess-1", "")
	require.NoError(t, err)
	_, err = m.Verifier.Verify(token)
	assert.Error(t, err)

	wrongIssuer := NewVerifier(m.Verifier.pub, "someone-else", "loadboard-app")
	token, _, err = m.Generator.GenerateAccessToken("user-1", "sess-1", "")
	require.NoError(t, err)
	_, err = wrongIssuer.Verify(token)
	assert.ErrorIs(t, err, gojwt.ErrTokenInvalidIssuer)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := testManager(t, -time.Minute)

	token, _, err := m.Generator.GenerateAccessToken("user-1", "sess-1", "")
	require.NoError(t, err)

	_, err = m.Verifier.VerifyAccessToken(token)
	assert.ErrorIs(t, err, gojwt.ErrTokenExpired)
}

func TestParseRSAKeys(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	parsed, err := ParseRSAPrivateKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, priv.Equal(parsed))

	pkixBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pub, err := ParseRSAPublicKey(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkixBytes}))
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(pub))

	_, err = ParseRSAPrivateKey([]byte("not pem"))
	assert.Error(t, err)
	_, err = ParseRSAPublicKey(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}}))
	assert.Error(t, err)
}
