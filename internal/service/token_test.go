package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
)

func TestTokenManager_IssueAndParseActor(t *testing.T) {
	m := NewTokenManager("test-secret-test-secret-test-secret", time.Hour)
	userID := uuid.New()

	token, err := m.Issue(userID, valueobject.RoleCreator)
	require.NoError(t, err)

	actor, err := m.ParseActor(token)
	require.NoError(t, err)
	assert.Equal(t, userID, actor.ID)
	assert.Equal(t, valueobject.RoleCreator, actor.Role)
}

func TestTokenManager_RejectsForeignSecretAndRole(t *testing.T) {
	m := NewTokenManager("first-secret", time.Hour)
	other := NewTokenManager("second-secret", time.Hour)

	token, err := other.Issue(uuid.New(), valueobject.RoleAdmin)
	require.NoError(t, err)
	_, err = m.ParseActor(token)
	assert.Error(t, err)

	bad, err := m.Issue(uuid.New(), valueobject.Role("root"))
	require.NoError(t, err)
	_, err = m.ParseActor(bad)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)
}

func TestTokenManager_Expired(t *testing.T) {
	m := NewTokenManager("secret", -time.Minute)
	token, err := m.Issue(uuid.New(), valueobject.RoleClient)
	require.NoError(t, err)

	_, _, err = m.ParseAccess(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
