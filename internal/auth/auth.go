// Package auth authenticates students with HS256 bearer tokens. The token subject
// is the student ID.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/victornm/examprep/internal/errors"
)

const bearerPrefix = "Bearer "

type Config struct {
	Secret string
	Issuer string
	// Now defaults to time.Now.
	Now func() time.Time
}

type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewVerifier(c Config) *Verifier {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Verifier{
		secret: []byte(c.Secret),
		issuer: c.Issuer,
		now:    now,
	}
}

// Issue signs a token for the student valid for ttl.
func (v *Verifier) Issue(studentID string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   studentID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify checks the token signature, expiry and issuer and returns the student ID.
func (v *Verifier) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", unauthenticated(fmt.Errorf("parse token: %w", err))
	}

	if claims.Subject == "" {
		return "", unauthenticated(fmt.Errorf("token has no subject"))
	}

	return claims.Subject, nil
}

func (v *Verifier) verifyHeader(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing bearer token"))
	}

	return v.Verify(strings.TrimPrefix(header, bearerPrefix))
}

type studentKey struct{}

func WithStudent(ctx context.Context, studentID string) context.Context {
	return context.WithValue(ctx, studentKey{}, studentID)
}

// StudentFrom returns the authenticated student, if any.
func StudentFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(studentKey{}).(string)
	return id, ok && id != ""
}

// GinMiddleware rejects requests without a valid bearer token and stores the
// student in the request context.
func GinMiddleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		studentID, err := v.verifyHeader(c.GetHeader("Authorization"))
		if err != nil {
			e := errors.Convert(err)
			c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
			return
		}

		c.Request = c.Request.WithContext(WithStudent(c.Request.Context(), studentID))
		c.Next()
	}
}

// UnaryServerInterceptor is the gRPC counterpart of GinMiddleware. Methods whose
// full name starts with one of skip are let through unauthenticated.
func UnaryServerInterceptor(v *Verifier, skip ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		for _, prefix := range skip {
			if strings.HasPrefix(info.FullMethod, prefix) {
				return handler(ctx, req)
			}
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("authorization"); len(vals) > 0 {
				header = vals[0]
			}
		}

		studentID, err := v.verifyHeader(header)
		if err != nil {
			return nil, err
		}

		return handler(WithStudent(ctx, studentID), req)
	}
}

func unauthenticated(err error) error {
	return errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid token"), errors.WithCause(err))
}
