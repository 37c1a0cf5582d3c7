package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveAdmin(mw func(http.Handler) http.Handler, token string) (*httptest.ResponseRecorder, *StaffClaims) {
	req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	var got *StaffClaims
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := StaffClaimsFromContext(r.Context()); ok {
			got = &c
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, got
}

func signStaffToken(t *testing.T, secret string, claims StaffClaims, method jwt.SigningMethod) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() StaffClaims {
	return StaffClaims{
		Role: "reception",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "recepcion",
			Issuer:    "dental-bot",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
}

func TestAdminJWTRejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil
	otherIssuer := validClaims()
	otherIssuer.Issuer = "someone-else"

	cases := []struct {
		name   string
		secret string
		token  string
	}{
		{"auth disabled", "", signStaffToken(t, "secret", validClaims(), jwt.SigningMethodHS256)},
		{"missing header", "secret", ""},
		{"wrong secret", "secret", signStaffToken(t, "wrong", validClaims(), jwt.SigningMethodHS256)},
		{"expired", "secret", signStaffToken(t, "secret", expired, jwt.SigningMethodHS256)},
		{"no expiry", "secret", signStaffToken(t, "secret", noExpiry, jwt.SigningMethodHS256)},
		{"other issuer", "secret", signStaffToken(t, "secret", otherIssuer, jwt.SigningMethodHS256)},
		{"other algorithm", "secret", signStaffToken(t, "secret", validClaims(), jwt.SigningMethodHS512)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, claims := serveAdmin(AdminJWT(tc.secret, "dental-bot"), tc.token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, claims)
		})
	}
}

func TestAdminJWTValidToken(t *testing.T) {
	rec, claims := serveAdmin(AdminJWT("secret", "dental-bot"), signStaffToken(t, "secret", validClaims(), jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "reception", claims.Role)
	assert.Equal(t, "recepcion", claims.Subject)
}

func TestAdminJWTWithoutIssuerCheck(t *testing.T) {
	c := validClaims()
	c.Issuer = ""
	rec, _ := serveAdmin(AdminJWT("secret", ""), signStaffToken(t, "secret", c, jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusOK, rec.Code)
}
