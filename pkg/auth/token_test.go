package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "toolcrib",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: userID,
		Role:   enums.RoleWorker,
		Name:   " Ada Lovelace ",
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.RoleWorker, claims.Role)
	assert.Equal(t, "Ada Lovelace", claims.Name)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleStorekeeper})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token+"x")
	assert.Error(t, err)
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleWorker})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleWorker})
	require.NoError(t, err)

	other := cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	assert.Error(t, err)
}

func TestMintAccessTokenValidation(t *testing.T) {
	cfg := testJWTConfig()

	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "admin"})
	assert.Error(t, err)

	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.RoleWorker})
	assert.ErrorIs(t, err, errNoSubject)

	noLifetime := cfg
	noLifetime.ExpirationMinutes = 0
	_, err = MintAccessToken(noLifetime, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleWorker})
	assert.ErrorIs(t, err, errNoLifetime)

	cfg.Secret = ""
	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleWorker})
	assert.Error(t, err)
}
