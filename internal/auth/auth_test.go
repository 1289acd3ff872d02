package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/victornm/examprep/internal/auth"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func makeVerifier(secret, issuer string) *auth.Verifier {
	return auth.NewVerifier(auth.Config{
		Secret: secret,
		Issuer: issuer,
		Now:    func() time.Time { return now },
	})
}

func TestVerifier_Verify(t *testing.T) {
	v := makeVerifier("s3cret", "examprep")

	tests := map[string]struct {
		token   func(t *testing.T) string
		wantID  string
		wantErr bool
	}{
		"valid token": {
			token: func(t *testing.T) string {
				tok, err := v.Issue("st1", time.Hour)
				require.NoError(t, err)
				return tok
			},
			wantID: "st1",
		},

		"expired token": {
			token: func(t *testing.T) string {
				tok, err := v.Issue("st1", -time.Minute)
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},

		"wrong secret": {
			token: func(t *testing.T) string {
				tok, err := makeVerifier("other", "examprep").Issue("st1", time.Hour)
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},

		"wrong issuer": {
			token: func(t *testing.T) string {
				tok, err := makeVerifier("s3cret", "someone-else").Issue("st1", time.Hour)
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},

		"unsigned token": {
			token: func(t *testing.T) string {
				tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
					Subject:   "st1",
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				}).SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},

		"garbage": {
			token:   func(*testing.T) string { return "not-a-token" },
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			id, err := v.Verify(tt.token(t))
			if tt.wantErr {
				assert.Equal(t, codes.Unauthenticated, status.Code(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := makeVerifier("s3cret", "")

	e := gin.New()
	e.Use(auth.GinMiddleware(v))
	e.GET("/me", func(c *gin.Context) {
		id, _ := auth.StudentFrom(c.Request.Context())
		c.String(http.StatusOK, id)
	})

	tok, err := v.Issue("st1", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "st1", w.Body.String())

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing bearer token")
}

func TestUnaryServerInterceptor(t *testing.T) {
	v := makeVerifier("s3cret", "")
	intercept := auth.UnaryServerInterceptor(v, "/grpc.health.v1.Health/")

	handler := func(ctx context.Context, _ any) (any, error) {
		id, _ := auth.StudentFrom(ctx)
		return id, nil
	}

	tok, err := v.Issue("st1", time.Hour)
	require.NoError(t, err)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+tok))
	got, err := intercept(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/examprep.v1.AttemptService/Start"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "st1", got)

	_, err = intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/examprep.v1.AttemptService/Start"}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	got, err = intercept(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
