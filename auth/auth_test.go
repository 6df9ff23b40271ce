package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("unit_test_secret_key_for_feed_tokens")

const testIssuer = "bumpfeed-auth"

func signToken(t *testing.T, claims FeedClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func validClaims(userID string) FeedClaims {
	return FeedClaims{
		Role:        "authenticated",
		DisplayName: "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestVerifier_Verify_Valid_Token(t *testing.T) {
	req := require.New(t)
	verifier := NewVerifier(testSecret, testIssuer)

	identity, err := verifier.Verify(signToken(t, validClaims("user-1")))

	req.NoError(err)
	req.Equal("user-1", identity.UserID)
	req.Equal("Alice", identity.DisplayName)
}

func TestVerifier_Verify_Rejects_Bad_Tokens(t *testing.T) {
	verifier := NewVerifier(testSecret, testIssuer)

	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongRole := validClaims("user-1")
	wrongRole.Role = "anon"

	wrongAudience := validClaims("user-1")
	wrongAudience.Audience = jwt.ClaimStrings{"admin"}

	noSubject := validClaims("")

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not.a.token"},
		{name: "expired token", token: signToken(t, expired)},
		{name: "wrong role", token: signToken(t, wrongRole)},
		{name: "wrong audience", token: signToken(t, wrongAudience)},
		{name: "missing subject", token: signToken(t, noSubject)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			require.Error(t, err)
		})
	}
}

func TestTokenFromRequest_Query_Then_Header(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	req.Equal("from-query", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	req.Equal("from-header", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	req.Empty(TokenFromRequest(r))
}
