package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"bumpfeed/contract"
	apperrors "bumpfeed/errors"
)

const expectedAudience = "authenticated"

// FeedClaims is the payload the external token issuer signs for feed
// access. Role and audience must both be "authenticated".
type FeedClaims struct {
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// Verifier validates handshake tokens with a shared HMAC secret.
// Token issuance and rotation are the issuer's concern.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer}
}

// Verify parses and validates signature, issuer, audience, role, and
// expiry, then extracts the stable user identity.
func (v *Verifier) Verify(tokenString string) (contract.Identity, error) {
	if tokenString == "" {
		return contract.Identity{}, apperrors.ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &FeedClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(expectedAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if apperrors.Is(err, jwt.ErrTokenExpired) {
			return contract.Identity{}, apperrors.ErrExpiredToken
		}
		return contract.Identity{}, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*FeedClaims)
	if !ok || !token.Valid {
		return contract.Identity{}, apperrors.ErrInvalidToken
	}
	if claims.Role != expectedAudience || claims.Subject == "" {
		return contract.Identity{}, apperrors.ErrInvalidToken
	}

	return contract.Identity{UserID: claims.Subject, DisplayName: claims.DisplayName}, nil
}

// TokenFromRequest pulls the handshake token from the `token` query
// parameter or an `Authorization: Bearer` header, in that order.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if rest, found := strings.CutPrefix(header, "Bearer "); found {
		return strings.TrimSpace(rest)
	}
	return ""
}
