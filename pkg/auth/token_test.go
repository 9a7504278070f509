package auth

import (
	"testing"
	"time"

	"github.com/angelmondragon/stockledger/pkg/config"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "stockledger", ExpirationMinutes: 30}

func mint(t *testing.T, cfg config.JWTConfig, now time.Time, p AccessTokenPayload) string {
	t.Helper()
	token, err := MintAccessToken(cfg, now, p)
	require.NoError(t, err)
	return token
}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	userID, storeID := uuid.New(), uuid.New()

	claims, err := ParseAccessToken(testCfg, mint(t, testCfg, now, AccessTokenPayload{
		UserID:        userID,
		ActiveStoreID: &storeID,
		Role:          enums.MemberRoleManager,
		JTI:           "fixed-jti",
	}))
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	require.NotNil(t, claims.ActiveStoreID)
	assert.Equal(t, storeID, *claims.ActiveStoreID)
	assert.Equal(t, enums.MemberRoleManager, claims.Role)
	assert.Equal(t, "fixed-jti", claims.ID)
	assert.Equal(t, testCfg.Issuer, claims.Issuer)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestMintGeneratesJTI(t *testing.T) {
	claims, err := ParseAccessToken(testCfg, mint(t, testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.MemberRoleStaff}))
	require.NoError(t, err)
	_, err = uuid.Parse(claims.ID)
	assert.NoError(t, err)
}

func TestParseAccessTokenRejects(t *testing.T) {
	valid := AccessTokenPayload{UserID: uuid.New(), Role: enums.MemberRoleOwner}
	otherIssuer := testCfg
	otherIssuer.Issuer = "someone-else"
	otherSecret := testCfg
	otherSecret.Secret = "rotated"

	cases := map[string]struct {
		cfg   config.JWTConfig
		token string
		is    error
	}{
		"bad signature": {cfg: testCfg, token: mint(t, otherSecret, time.Now(), valid), is: jwt.ErrTokenSignatureInvalid},
		"expired":       {cfg: testCfg, token: mint(t, testCfg, time.Now().Add(-time.Hour), valid), is: jwt.ErrTokenExpired},
		"wrong issuer":  {cfg: otherIssuer, token: mint(t, testCfg, time.Now(), valid), is: jwt.ErrTokenInvalidIssuer},
		"missing user":  {cfg: testCfg, token: signRaw(t, AccessTokenClaims{Role: enums.MemberRoleOwner}), is: ErrMissingUser},
		"unknown role":  {cfg: testCfg, token: signRaw(t, AccessTokenClaims{UserID: uuid.New(), Role: "janitor"}), is: ErrInvalidRole},
		"no secret":     {cfg: config.JWTConfig{}, token: "x", is: errMissingKey},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccessToken(tc.cfg, tc.token)
			assert.ErrorIs(t, err, tc.is)
		})
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	owner := AccessTokenPayload{UserID: uuid.New(), Role: enums.MemberRoleOwner}
	cases := map[string]struct {
		cfg     config.JWTConfig
		payload AccessTokenPayload
	}{
		"empty role":     {cfg: testCfg, payload: AccessTokenPayload{UserID: uuid.New()}},
		"missing user":   {cfg: testCfg, payload: AccessTokenPayload{Role: enums.MemberRoleOwner}},
		"missing secret": {cfg: config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, payload: owner},
		"zero ttl":       {cfg: config.JWTConfig{Secret: "s", Issuer: "x"}, payload: owner},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MintAccessToken(tc.cfg, time.Now(), tc.payload)
			assert.Error(t, err)
		})
	}
}

func signRaw(t *testing.T, claims AccessTokenClaims) string {
	t.Helper()
	claims.Issuer = testCfg.Issuer
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Minute))
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)
	return signed
}
