package authn

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidJWT = errors.New("invalid jwt token")
var ErrInvalidClaims = errors.New("invalid claims")

// Claims are the session claims carried in a bearer token. SessionID
// references a session record in the session store; a token whose session
// has been deleted is revoked even if the signature is still valid.
type Claims struct {
	jwt.StandardClaims
	UserID    int64  `json:"uid"`
	Login     string `json:"login"`
	SessionID string `json:"sid"`
}

// Authenticator signs and verifies session tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// IssueToken signs a session token for the given user and session id.
func (a *Authenticator) IssueToken(userID int64, login, sessionID string, expiresAt time.Time) (string, error) {
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expiresAt.Unix(),
			IssuedAt:  time.Now().UTC().Unix(),
		},
		UserID:    userID,
		Login:     login,
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseClaims verifies the token signature and expiry and returns the
// embedded session claims.
func (a *Authenticator) ParseClaims(token string) (Claims, error) {
	claims := Claims{}
	t, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidJWT
		}
		return a.secret, nil
	})
	if err != nil {
		return Claims{}, ErrInvalidJWT
	}
	if t == nil || !t.Valid || claims.SessionID == "" {
		return Claims{}, ErrInvalidClaims
	}
	return claims, nil
}
