package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("unit-test-secret")

func signToken(t *testing.T, claims Claims, secret []byte) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func validClaims(subject, role string) Claims {
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestParseJWT(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{
			name:  "valid",
			token: signToken(t, validClaims("user-1", "cashier"), testSecret),
		},
		{
			name:    "wrong secret",
			token:   signToken(t, validClaims("user-1", "cashier"), []byte("other")),
			wantErr: true,
		},
		{
			name: "expired",
			token: signToken(t, Claims{
				Role: "cashier",
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "user-1",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
				},
			}, testSecret),
			wantErr: true,
		},
		{
			name:    "missing subject",
			token:   signToken(t, validClaims("", "cashier"), testSecret),
			wantErr: true,
		},
		{
			name:    "unknown role",
			token:   signToken(t, validClaims("user-1", "superuser"), testSecret),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not.a.token",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseJWT(tt.token, testSecret)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", claims.Subject)
			assert.Equal(t, "cashier", claims.Role)
		})
	}
}

func TestMiddlewareInjectsActor(t *testing.T) {
	var gotActor Actor
	var gotOK bool
	handler := NewMiddleware(testSecret).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, gotOK = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims("user-7", "accountant"), testSecret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, gotOK)
	assert.Equal(t, "user-7", gotActor.ID)
	assert.Equal(t, RoleAccountant, gotActor.Role)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	handler := NewMiddleware(testSecret).Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, CanDisburse(RoleCashier))
	assert.True(t, CanDisburse(RoleAdmin))
	assert.False(t, CanDisburse(RoleRequestor))
	assert.False(t, CanDisburse(RoleApprover))

	assert.True(t, CanConfirmChange(RoleAccountant))
	assert.False(t, CanConfirmChange(RoleRequestor))

	assert.True(t, CanReject(RoleApprover))
	assert.False(t, CanReject(RoleCashier))

	assert.True(t, CanManageBook(RoleAccountant))
	assert.False(t, CanManageBook(RoleRequestor))
}
