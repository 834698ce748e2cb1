package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

func TestStaticKeyProvider(t *testing.T) {
	t.Run("no key material", func(t *testing.T) {
		provider := NewStaticKeyProvider("", nil)
		_, err := provider.SigningKey()
		assert.ErrorIs(t, err, pkgerrors.ErrKeyUnavailable)
		_, err = provider.ValidationKeys()
		assert.ErrorIs(t, err, pkgerrors.ErrKeyUnavailable)
	})

	t.Run("fallback secrets become validation keys", func(t *testing.T) {
		provider := NewStaticKeyProvider("new", []string{"old", ""})
		keys, err := provider.ValidationKeys()
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})
}

func TestAccessTokenIssuer_IssueAndParse(t *testing.T) {
	provider := NewStaticKeyProvider("secret", nil)
	issuer := NewAccessTokenIssuer(provider, 15*time.Minute)

	now := time.Now().UTC()
	signed, tokenID, err := issuer.Issue(42, "member@example.com", []string{"admin", "organizer"}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenID)

	claims, err := issuer.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "member@example.com", claims.Email)
	assert.Equal(t, []string{"admin", "organizer"}, claims.Roles)
	assert.Equal(t, tokenID, claims.ID)
}

func TestAccessTokenIssuer_TTLBoundary(t *testing.T) {
	provider := NewStaticKeyProvider("secret", nil)
	issuer := NewAccessTokenIssuer(provider, 15*time.Minute)

	now := time.Now().UTC()
	signed, _, err := issuer.Issue(1, "member@example.com", nil, now)
	require.NoError(t, err)

	t.Run("accepted just before expiry", func(t *testing.T) {
		issuer.clock = func() time.Time { return now.Add(14*time.Minute + 59*time.Second) }
		_, err := issuer.Parse(signed)
		assert.NoError(t, err)
	})

	t.Run("rejected just after expiry", func(t *testing.T) {
		issuer.clock = func() time.Time { return now.Add(15*time.Minute + 1*time.Second) }
		_, err := issuer.Parse(signed)
		assert.Error(t, err)
	})
}

func TestAccessTokenIssuer_KeyRollover(t *testing.T) {
	oldProvider := NewStaticKeyProvider("old-secret", nil)
	oldIssuer := NewAccessTokenIssuer(oldProvider, 15*time.Minute)

	signed, _, err := oldIssuer.Issue(7, "member@example.com", nil, time.Now().UTC())
	require.NoError(t, err)

	t.Run("token from rotated-out key still validates", func(t *testing.T) {
		provider := NewStaticKeyProvider("new-secret", []string{"old-secret"})
		issuer := NewAccessTokenIssuer(provider, 15*time.Minute)
		claims, err := issuer.Parse(signed)
		require.NoError(t, err)
		assert.Equal(t, "7", claims.Subject)
	})

	t.Run("token from unknown key rejected", func(t *testing.T) {
		provider := NewStaticKeyProvider("new-secret", nil)
		issuer := NewAccessTokenIssuer(provider, 15*time.Minute)
		_, err := issuer.Parse(signed)
		assert.Error(t, err)
	})
}

func TestAccessTokenIssuer_NoKey(t *testing.T) {
	issuer := NewAccessTokenIssuer(NewStaticKeyProvider("", nil), 15*time.Minute)
	_, _, err := issuer.Issue(1, "member@example.com", nil, time.Now())
	assert.ErrorIs(t, err, pkgerrors.ErrKeyUnavailable)
}
