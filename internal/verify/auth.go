package verify

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imrishuroy/go-callback-reconciler/internal/reconcile"
)

// MsgInvalidToken is shown when the auth token does not verify.
const MsgInvalidToken = "Token de autenticação inválido ou expirado"

// Auth exchanges the callback token for a session by verifying it as an
// HS256 JWT issued by the auth service.
type Auth struct {
	secret  []byte
	issuer  string
	nowFunc func() time.Time
}

// NewAuth returns an Auth verifier. An empty issuer is not checked.
func NewAuth(secret, issuer string) *Auth {
	return &Auth{secret: []byte(secret), issuer: issuer, nowFunc: time.Now}
}

// Verify succeeds with the token subject as payload.
func (a *Auth) Verify(ctx context.Context, params reconcile.Params) (reconcile.Verdict, error) {
	raw, ok := params.Get(reconcile.KeyToken)
	if !ok {
		return reconcile.Verdict{Error: MsgInvalidToken}, nil
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.nowFunc),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return reconcile.Verdict{Error: MsgInvalidToken}, nil
	}
	return reconcile.Verdict{Success: true, Payload: claims.Subject}, nil
}
